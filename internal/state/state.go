package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "storefront:reindex:"
	// Run keys outlive any realistic reindex and then expire on their own.
	runTTL = 48 * time.Hour
)

// StateManager tracks reindex progress per run: the last fully processed
// listing page of every category and the product ids already indexed.
type StateManager interface {
	GetLastProcessedPage(ctx context.Context, runID string, categoryID int64) (int, error)
	SetLastProcessedPage(ctx context.Context, runID string, categoryID int64, pageNumber int) error
	// MarkSeen records productID for the run and reports whether it was new.
	MarkSeen(ctx context.Context, runID string, productID int64) (bool, error)
	// UnmarkSeen lets products whose write failed be picked up again.
	UnmarkSeen(ctx context.Context, runID string, productIDs ...int64) error
}

type redisStateManager struct {
	redisClient *redis.Client
}

func NewRedisStateManager(redisClient *redis.Client) StateManager {
	return &redisStateManager{
		redisClient: redisClient,
	}
}

func pageKey(runID string) string {
	return keyPrefix + runID + ":page"
}

func seenKey(runID string) string {
	return keyPrefix + runID + ":seen"
}

func (s *redisStateManager) GetLastProcessedPage(ctx context.Context, runID string, categoryID int64) (int, error) {
	val, err := s.redisClient.HGet(ctx, pageKey(runID), strconv.FormatInt(categoryID, 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil // No progress saved yet
		}
		return 0, fmt.Errorf("failed to get last processed page for category %d: %w", categoryID, err)
	}

	page, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("failed to parse page number for category %d: %w", categoryID, err)
	}

	return page, nil
}

func (s *redisStateManager) SetLastProcessedPage(ctx context.Context, runID string, categoryID int64, pageNumber int) error {
	key := pageKey(runID)
	pipe := s.redisClient.TxPipeline()
	pipe.HSet(ctx, key, strconv.FormatInt(categoryID, 10), pageNumber)
	pipe.Expire(ctx, key, runTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set last processed page for category %d: %w", categoryID, err)
	}
	return nil
}

func (s *redisStateManager) MarkSeen(ctx context.Context, runID string, productID int64) (bool, error) {
	key := seenKey(runID)
	pipe := s.redisClient.TxPipeline()
	added := pipe.SAdd(ctx, key, productID)
	pipe.Expire(ctx, key, runTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to mark product %d as seen: %w", productID, err)
	}
	return added.Val() == 1, nil
}

func (s *redisStateManager) UnmarkSeen(ctx context.Context, runID string, productIDs ...int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(productIDs))
	for _, id := range productIDs {
		members = append(members, id)
	}
	if err := s.redisClient.SRem(ctx, seenKey(runID), members...).Err(); err != nil {
		return fmt.Errorf("failed to unmark %d products: %w", len(productIDs), err)
	}
	return nil
}
