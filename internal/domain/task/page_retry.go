package task

type PageRetryTask struct {
	RunID        string `json:"run_id"`
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	PageNumber   int    `json:"page_number"` // Failed page number
	RetryCount   int    `json:"retry_count"`
	Error        string `json:"error"` // Error message from the last failure
}

func (t *PageRetryTask) TaskType() string {
	return TypePageRetry
}

func (t *PageRetryTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
