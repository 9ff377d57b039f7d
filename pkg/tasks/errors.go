package tasks

import "fmt"

// FetchError reports a failed task-list refresh. Failures are transient:
// the local task file keeps its previous content and the next cycle tries
// again.
type FetchError struct {
	Endpoint string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("task fetch from %s failed: %v", e.Endpoint, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
