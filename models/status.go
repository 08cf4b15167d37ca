package models

// Status is the lifecycle state of a transaction.
//
// External outgoing transfers walk PENDING -> IN_PROGRESS -> {COMPLETED,
// FAILED}. Internal transfers skip the relay hop and go PENDING ->
// {COMPLETED, FAILED}. Incoming transfers are created already COMPLETED.
// Terminal states are never revisited.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// monotonic.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusInProgress || next.Terminal()
	case StatusInProgress:
		return next.Terminal()
	}
	return false
}
