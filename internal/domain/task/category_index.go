package task

// CategoryIndexTask asks a worker to index every product of one category.
type CategoryIndexTask struct {
	RunID        string `json:"run_id"`
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
}

func (t *CategoryIndexTask) TaskType() string {
	return TypeCategoryIndex
}

func (t *CategoryIndexTask) TaskValue() ([]byte, error) {
	return DefaultTaskValue(t)
}
