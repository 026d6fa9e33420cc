package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// TaskStatus is the persisted state of a retriable dispatch task.
//
//	pending -> started -> succeeded
//	                   -> pending (retry, attempts remain)
//	                   -> dead    (permanent failure or retries exhausted)
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskStarted   TaskStatus = "started"
	TaskSucceeded TaskStatus = "succeeded"
	TaskDead      TaskStatus = "dead"
)

// Terminal reports whether no further transitions happen from s.
func (s TaskStatus) Terminal() bool { return s == TaskSucceeded || s == TaskDead }

// Task is one unit of asynchronous work.
type Task struct {
	ID            uuid.UUID
	Kind          string
	Payload       json.RawMessage
	Status        TaskStatus
	Attempts      int // failed executions so far
	MaxAttempts   int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
