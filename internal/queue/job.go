// Package queue is a best-effort delayed job runner: fire-and-forget with
// bounded retries and no delivery guarantee across restarts of the memory backend.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Job is a unit of background work.
type Job struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Attempt   int             `json:"attempt"`
	RunAt     time.Time       `json:"runAt"`
	LastError string          `json:"lastError,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	FailedAt  *time.Time      `json:"failedAt,omitempty"`
}

// NewJob builds a job of the given type with a JSON payload.
func NewJob(id, jobType string, payload interface{}, runAt time.Time) (Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Job{
		ID:        id,
		Type:      jobType,
		Payload:   raw,
		RunAt:     runAt,
		CreatedAt: time.Now(),
	}, nil
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// Backend stores scheduled jobs.
type Backend interface {
	// Push schedules a job unless one with the same ID is already queued.
	Push(ctx context.Context, job Job) (bool, error)
	// PopDue claims up to limit jobs whose RunAt is not after now.
	PopDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	// Fail records a job that will not be retried.
	Fail(ctx context.Context, job Job) error
	// Failed lists the most recently failed jobs, newest first.
	Failed(ctx context.Context, limit int) ([]Job, error)
	// Pending counts queued jobs.
	Pending(ctx context.Context) (int64, error)
	Close() error
}

// DeferError asks the runner to run the job again at Until without using a retry.
type DeferError struct {
	Until  time.Time
	Reason string
}

func (e *DeferError) Error() string {
	return fmt.Sprintf("deferred until %s: %s", e.Until.Format(time.RFC3339), e.Reason)
}

// Defer builds a DeferError.
func Defer(until time.Time, reason string) error {
	return &DeferError{Until: until, Reason: reason}
}

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff returns the delay before retry number attempt: 2^attempt seconds.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}
