package types

import (
	"fmt"
	"time"
)

// Status is the persisted state of a work item. The numeric values are
// stored as-is in the database.
type Status int

const (
	StatusPending    Status = 0
	StatusInProgress Status = 1 // in-memory only, never written to the store
	StatusCompleted  Status = 2
	StatusFailed     Status = 3
	StatusIgnored    Status = 4 // malformed URL, will not be retried
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in-progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Eligible reports whether an item with this status is picked up by the next pass.
func (s Status) Eligible() bool {
	return s == StatusPending || s == StatusFailed
}

// Terminal reports whether the status will never change again on its own.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusIgnored
}

// WorkItem is one durable download request.
type WorkItem struct {
	ID         int64
	URL        string
	Status     Status
	Attempts   int
	LastError  string
	OutputPath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Outcome is reported to observers when a transfer settles.
type Outcome struct {
	URL        string
	OutputPath string
	Bytes      int64
	Err        error
}

func (o Outcome) Success() bool {
	return o.Err == nil
}
