package enums

// ImportTaskStatus tracks a queued feed import.
type ImportTaskStatus string

const (
	ImportTaskPending   ImportTaskStatus = "pending"
	ImportTaskRunning   ImportTaskStatus = "running"
	ImportTaskSucceeded ImportTaskStatus = "succeeded"
	ImportTaskFailed    ImportTaskStatus = "failed"
)

// IsTerminal reports whether the task will not be picked up again.
func (s ImportTaskStatus) IsTerminal() bool {
	return s == ImportTaskSucceeded || s == ImportTaskFailed
}
