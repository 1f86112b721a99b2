package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/catalog/internal/catalog"
	"storefront/catalog/internal/config"
	"storefront/catalog/internal/domain"
	"storefront/catalog/internal/domain/task"
	"storefront/catalog/internal/queue"
	"storefront/catalog/internal/repository"
	"storefront/catalog/internal/search"
	"storefront/catalog/internal/state"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ReindexCatalog is the part of the catalog client the reindex needs.
type ReindexCatalog interface {
	LoadCategoryTree(ctx context.Context) ([]domain.Category, error)
	FetchCategoryProducts(ctx context.Context, categoryID int64, query domain.ProductQuery) (*domain.ProductPage, error)
}

type ReindexService struct {
	catalog      ReindexCatalog
	index        search.Index
	queue        queue.Queue
	stateManager state.StateManager
	repository   repository.IndexedProductRepository

	cfg          config.ReindexConfig
	mediaBaseURL string
	minIdleTime  time.Duration
}

func NewReindexService(
	catalog ReindexCatalog,
	index search.Index,
	queue queue.Queue,
	stateManager state.StateManager,
	repository repository.IndexedProductRepository,
	cfg config.ReindexConfig,
	mediaBaseURL string,
	minIdleTime int,
) *ReindexService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = 1
	}
	idle := time.Duration(minIdleTime) * time.Second
	if idle <= 0 {
		idle = time.Minute
	}
	return &ReindexService{
		catalog:      catalog,
		index:        index,
		queue:        queue,
		stateManager: stateManager,
		repository:   repository,
		cfg:          cfg,
		mediaBaseURL: mediaBaseURL,
		minIdleTime:  idle,
	}
}

// Enqueue starts a new run: it recreates the search index and queues one
// task per category. It returns the run id.
func (s *ReindexService) Enqueue(ctx context.Context) (string, error) {
	tree, err := s.catalog.LoadCategoryTree(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load category tree: %w", err)
	}
	categories := catalog.Flatten(tree)
	if len(categories) == 0 {
		return "", fmt.Errorf("category tree is empty, refusing to reset the index")
	}

	if err := s.index.Reset(ctx); err != nil {
		return "", err
	}

	runID := uuid.NewString()
	log.Infof("🔄 Reindex run %s: queueing %d categories", runID, len(categories))

	for _, c := range categories {
		_, err := s.queue.AddTask(ctx, &task.CategoryIndexTask{
			RunID:        runID,
			CategoryID:   int64(c.ID),
			CategoryName: c.Name,
		})
		if err != nil {
			log.Errorf("❌ Failed to add task for category %d: %v", c.ID, err)
			return "", err
		}
	}

	return runID, nil
}

// RunWorkers consumes both task streams until ctx is cancelled or, with
// idle rounds configured, until the queues are drained.
func (s *ReindexService) RunWorkers(ctx context.Context) error {
	workers := max(1, s.cfg.Workers)

	claimCtx, stopClaimers := context.WithCancel(ctx)
	defer stopClaimers()

	var claimers sync.WaitGroup
	for _, taskType := range task.Types {
		taskType := taskType
		claimers.Add(1)
		go func() {
			defer claimers.Done()
			s.autoClaim(claimCtx, queue.StreamName(taskType))
		}()
	}

	// Retry workers may only drain once no index worker can produce retries.
	mainDone := make(chan struct{})

	retries := new(errgroup.Group)
	for i := 0; i < max(1, workers/2); i++ {
		consumer := fmt.Sprintf("retry-worker-%d", i+1)
		retries.Go(func() error {
			return s.work(ctx, consumer, queue.StreamName(task.TypePageRetry), mainDone)
		})
	}

	indexers := new(errgroup.Group)
	for i := 0; i < workers; i++ {
		consumer := fmt.Sprintf("index-worker-%d", i+1)
		indexers.Go(func() error {
			return s.work(ctx, consumer, queue.StreamName(task.TypeCategoryIndex), nil)
		})
	}

	err := indexers.Wait()
	close(mainDone)
	if retryErr := retries.Wait(); err == nil {
		err = retryErr
	}

	stopClaimers()
	claimers.Wait()

	log.Info("✅ Reindex workers finished")
	return err
}

func (s *ReindexService) autoClaim(ctx context.Context, stream string) {
	ticker := time.NewTicker(s.minIdleTime)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			consumer := fmt.Sprintf("autoclaimer-%d", time.Now().UnixNano())
			claimedMessages, err := s.queue.AutoClaim(ctx, consumer, stream, s.minIdleTime)
			if err != nil {
				log.Errorf("❌ Failed to auto-claim messages for %s: %v", stream, err)
				continue
			}
			if len(claimedMessages) > 0 {
				log.Infof("🔄 Auto-claimed %d messages from %s", len(claimedMessages), stream)
			}
			for _, msg := range claimedMessages {
				if err := s.processMessage(ctx, stream, &msg); err != nil {
					log.Errorf("❌ Failed to process auto-claimed message %s: %v", msg.ID, err)
				}
			}
		}
	}
}

// work reads one stream until ctx ends or the stream stays empty for the
// configured idle rounds. When gate is set, draining waits for it to close.
func (s *ReindexService) work(ctx context.Context, consumer, stream string, gate <-chan struct{}) error {
	log.Infof("🚀 Starting worker %s on %s", consumer, stream)
	idle := 0
	for {
		if ctx.Err() != nil {
			log.Infof("🛑 Worker %s stopping", consumer)
			return nil
		}

		msg, err := s.queue.GetTask(ctx, consumer, stream)
		if err != nil {
			log.Errorf("❌ Failed to get task from %s: %v", stream, err)
			idle++
		} else if msg == nil {
			idle++
		} else {
			idle = 0
			if err := s.processMessage(ctx, stream, msg); err != nil {
				log.Errorf("❌ Failed to process message %s: %v", msg.ID, err)
			}
			continue
		}

		if s.cfg.IdleRounds > 0 && idle >= s.cfg.IdleRounds && gateOpen(gate) {
			log.Infof("🏁 Worker %s drained %s", consumer, stream)
			return nil
		}
	}
}

func gateOpen(gate <-chan struct{}) bool {
	if gate == nil {
		return true
	}
	select {
	case <-gate:
		return true
	default:
		return false
	}
}

func (s *ReindexService) processMessage(ctx context.Context, stream string, msg *redis.XMessage) error {
	taskType, ok := msg.Values["task_type"].(string)
	if !ok {
		return fmt.Errorf("invalid task type in message %s", msg.ID)
	}

	taskData, ok := msg.Values["task_data"].(string)
	if !ok {
		return fmt.Errorf("invalid task data in message %s", msg.ID)
	}

	switch taskType {
	case task.TypeCategoryIndex:
		indexTask, err := task.UnmarshalTask[*task.CategoryIndexTask]([]byte(taskData))
		if err != nil {
			return fmt.Errorf("failed to unmarshal category index task data: %w", err)
		}
		if err := s.indexCategory(ctx, indexTask); err != nil {
			return err
		}

	case task.TypePageRetry:
		retryTask, err := task.UnmarshalTask[*task.PageRetryTask]([]byte(taskData))
		if err != nil {
			return fmt.Errorf("failed to unmarshal retry task data: %w", err)
		}
		if err := s.retryPage(ctx, retryTask); err != nil {
			return fmt.Errorf("failed to retry page: %w", err)
		}

	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}

	if err := s.queue.AckTask(ctx, stream, msg.ID); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
	}

	return nil
}

func (s *ReindexService) indexCategory(ctx context.Context, t *task.CategoryIndexTask) error {
	lastProcessedPage, err := s.stateManager.GetLastProcessedPage(ctx, t.RunID, t.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to get last processed page: %w", err)
	}
	if lastProcessedPage > 0 {
		log.Infof("🔄 Continue from page %d for %s", lastProcessedPage+1, t.CategoryName)
	}

	failedPage, err := s.indexFrom(ctx, t.RunID, t.CategoryID, t.CategoryName, lastProcessedPage+1)
	if err == nil {
		return nil
	}

	// Hand the rest of the category to the retry queue instead of failing
	retryTask := &task.PageRetryTask{
		RunID:        t.RunID,
		CategoryID:   t.CategoryID,
		CategoryName: t.CategoryName,
		PageNumber:   failedPage,
		Error:        err.Error(),
	}
	if _, addErr := s.queue.AddTask(ctx, retryTask); addErr != nil {
		return fmt.Errorf("failed to add retry task for page %d: %w", failedPage, addErr)
	}
	log.Warnf("🔄 Added page %d of %s to retry queue due to error: %v", failedPage, t.CategoryName, err)
	return nil
}

func (s *ReindexService) retryPage(ctx context.Context, t *task.PageRetryTask) error {
	t.RetryCount++
	if t.RetryCount > s.cfg.MaxRetries {
		log.Errorf("❌ Giving up on page %d of %s after %d attempts: %s",
			t.PageNumber, t.CategoryName, t.RetryCount-1, t.Error)
		return nil
	}

	log.Infof("🔄 Retrying page %d for %s (attempt %d)", t.PageNumber, t.CategoryName, t.RetryCount)

	failedPage, err := s.indexFrom(ctx, t.RunID, t.CategoryID, t.CategoryName, t.PageNumber)
	if err == nil {
		log.Infof("✅ Recovered %s from page %d after %d attempts", t.CategoryName, t.PageNumber, t.RetryCount)
		return nil
	}

	next := &task.PageRetryTask{
		RunID:        t.RunID,
		CategoryID:   t.CategoryID,
		CategoryName: t.CategoryName,
		PageNumber:   failedPage,
		RetryCount:   t.RetryCount,
		Error:        err.Error(),
	}
	if _, addErr := s.queue.AddTask(ctx, next); addErr != nil {
		return addErr
	}

	log.Warnf("🔄 Page %d for %s failed again (attempt %d): %v", failedPage, t.CategoryName, t.RetryCount, err)
	return nil
}

// indexFrom indexes every listing page of a category starting at startPage.
// On failure it returns the page that failed.
func (s *ReindexService) indexFrom(ctx context.Context, runID string, categoryID int64, categoryName string, startPage int) (int, error) {
	pageNumber := max(1, startPage)
	processed := 0
	indexed := 0

	for {
		page, err := s.catalog.FetchCategoryProducts(ctx, categoryID, domain.ProductQuery{
			Page:     pageNumber,
			PageSize: s.cfg.PageSize,
		})
		if err != nil {
			s.saveProgress(ctx, runID, categoryID, pageNumber-1)
			return pageNumber, err
		}

		n, err := s.indexProducts(ctx, runID, categoryID, categoryName, page.Products)
		if err != nil {
			s.saveProgress(ctx, runID, categoryID, pageNumber-1)
			return pageNumber, err
		}
		indexed += n

		processed++
		if processed%s.cfg.SaveEvery == 0 {
			s.saveProgress(ctx, runID, categoryID, pageNumber)
		}

		if isLastPage(page, pageNumber, s.cfg.PageSize) {
			break
		}
		pageNumber++
	}

	s.saveProgress(ctx, runID, categoryID, pageNumber)
	log.Infof("✅ Completed %s: %d pages, %d products indexed", categoryName, processed, indexed)
	return 0, nil
}

func isLastPage(page *domain.ProductPage, pageNumber, pageSize int) bool {
	if len(page.Products) < pageSize {
		return true
	}
	return page.TotalCount > 0 && pageNumber*pageSize >= page.TotalCount
}

// indexProducts writes the products not yet indexed in this run.
func (s *ReindexService) indexProducts(ctx context.Context, runID string, categoryID int64, categoryName string, products []domain.Product) (int, error) {
	docs := make([]domain.IndexDocument, 0, len(products))
	for i := range products {
		p := &products[i]
		if p.ID <= 0 {
			continue
		}
		fresh, err := s.stateManager.MarkSeen(ctx, runID, int64(p.ID))
		if err != nil {
			return 0, err
		}
		if !fresh {
			continue
		}
		docs = append(docs, search.NewDocument(p, categoryName, s.mediaBaseURL))
	}

	if err := s.index.BulkUpsert(ctx, docs); err != nil {
		ids := make([]int64, 0, len(docs))
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
		if unmarkErr := s.stateManager.UnmarkSeen(ctx, runID, ids...); unmarkErr != nil {
			log.Errorf("❌ Failed to release products after failed upsert: %v", unmarkErr)
		}
		return 0, err
	}

	for _, doc := range docs {
		if err := s.repository.SaveIndexedProduct(ctx, categoryID, doc); err != nil {
			log.Errorf("❌ Failed to record indexed product %d: %v", doc.ID, err)
		}
	}
	return len(docs), nil
}

func (s *ReindexService) saveProgress(ctx context.Context, runID string, categoryID int64, page int) {
	if page < 1 {
		return
	}
	if err := s.stateManager.SetLastProcessedPage(ctx, runID, categoryID, page); err != nil {
		log.Errorf("❌ Failed to save progress for category %d: %v", categoryID, err)
	}
}
