package aiqueue

import (
	"context"
	"sync"
	"time"

	"github.com/UniQw/aiqueue/inference"
	"github.com/google/uuid"
)

// Record is one submitted report request. Identity and payload are fixed at
// creation; everything else is guarded by the record's mutex and changes only
// through the Orchestrator.
type Record struct {
	ID        string
	Finding   Finding
	Line      int
	Prompt    string
	CreatedAt time.Time

	mu             sync.Mutex
	status         Status
	updatedAt      time.Time
	retryCount     int
	cancelled      bool
	removed        bool
	handle         context.CancelFunc
	response       string
	errMsg         string
	errKind        inference.Kind
	promptTokens   int
	responseTokens int
	startedAt      time.Time
	completedAt    time.Time
	attempt        uint64
}

func newRecord(f Finding, prompt string, line int) *Record {
	now := time.Now()
	return &Record{
		ID:           uuid.NewString(),
		Finding:      f,
		Line:         line,
		Prompt:       prompt,
		CreatedAt:    now,
		status:       StatusPending,
		updatedAt:    now,
		promptTokens: inference.EstimateTokens(prompt),
	}
}

// touch must be called with r.mu held.
func (r *Record) touch() { r.updatedAt = time.Now() }

// Status returns the current status.
func (r *Record) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// RetryCount returns how many eligible failures the record has seen.
func (r *Record) RetryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryCount
}

// UpdatedAt returns the time of the last mutation.
func (r *Record) UpdatedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updatedAt
}

// Response returns the generated text of a completed record.
func (r *Record) Response() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.response
}

// Err returns the last failure message, or "" if none.
func (r *Record) Err() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errMsg
}

// Cancelled reports whether Cancel was applied.
func (r *Record) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// RemovedFromQueue reports whether cancellation pulled the record out of the queue.
func (r *Record) RemovedFromQueue() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removed
}

// Valid reports whether the record is neither cancelled nor removed from the queue.
func (r *Record) Valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.cancelled && !r.removed
}

// View returns an immutable snapshot.
func (r *Record) View() RecordView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

func (r *Record) viewLocked() RecordView {
	v := RecordView{
		ID:               r.ID,
		FindingID:        r.Finding.ID,
		Finding:          r.Finding,
		Line:             r.Line,
		Prompt:           r.Prompt,
		Status:           r.status,
		RetryCount:       r.retryCount,
		Cancelled:        r.cancelled,
		RemovedFromQueue: r.removed,
		Response:         r.response,
		Error:            r.errMsg,
		PromptTokens:     r.promptTokens,
		ResponseTokens:   r.responseTokens,
		Attempt:          r.attempt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.updatedAt,
		StartedAt:        r.startedAt,
		CompletedAt:      r.completedAt,
	}
	if r.errMsg != "" {
		v.ErrorKind = r.errKind.String()
	}
	return v
}

// claim moves a PENDING record to IN_PROGRESS and returns the new attempt number.
func (r *Record) claim() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelled || r.status != StatusPending {
		return 0, false
	}
	r.status = StatusInProgress
	r.attempt++
	if r.startedAt.IsZero() {
		r.startedAt = time.Now()
	}
	r.touch()
	return r.attempt, true
}

// attach stores the network handle of attempt. It fails when the attempt is
// no longer current, in which case the caller must not start the call.
func (r *Record) attach(attempt uint64, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ownedLocked(attempt) {
		return false
	}
	r.handle = cancel
	return true
}

// detach clears the handle if it still belongs to attempt.
func (r *Record) detach(attempt uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempt == attempt {
		r.handle = nil
	}
}

func (r *Record) ownedLocked(attempt uint64) bool {
	return r.attempt == attempt && r.status == StatusInProgress && !r.cancelled
}

// resume marks the start of the backend call of attempt so the stale sweep
// does not count the pre-retry pause. It fails when the attempt was abandoned.
func (r *Record) resume(attempt uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ownedLocked(attempt) {
		return false
	}
	r.touch()
	return true
}

// takeHandleLocked detaches and returns the current handle.
func (r *Record) takeHandleLocked() context.CancelFunc {
	h := r.handle
	r.handle = nil
	return h
}

// complete settles attempt as COMPLETED. It reports false for abandoned or
// cancelled attempts.
func (r *Record) complete(attempt uint64, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ownedLocked(attempt) {
		return false
	}
	r.status = StatusCompleted
	r.response = text
	r.responseTokens = inference.EstimateTokens(text)
	r.errMsg = ""
	r.completedAt = time.Now()
	r.touch()
	return true
}

// markCancelled applies Cancel and returns the handle to close, if any.
func (r *Record) markCancelled() (bool, context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.status.IsCancellable() {
		return false, nil
	}
	r.cancelled = true
	r.status = StatusCancelled
	r.completedAt = time.Now()
	r.touch()
	return true, r.takeHandleLocked()
}

func (r *Record) markRemoved() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.removed {
		r.removed = true
		r.touch()
	}
}

// pending reports whether the record still waits for a re-queue.
func (r *Record) pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == StatusPending && !r.cancelled
}

// RecordView is an immutable snapshot of a Record handed to listeners.
type RecordView struct {
	ID               string    `json:"id"`
	FindingID        string    `json:"finding_id"`
	Finding          Finding   `json:"finding"`
	Line             int       `json:"line"`
	Prompt           string    `json:"prompt,omitempty"`
	Status           Status    `json:"status"`
	RetryCount       int       `json:"retry_count"`
	Cancelled        bool      `json:"cancelled,omitempty"`
	RemovedFromQueue bool      `json:"removed_from_queue,omitempty"`
	Response         string    `json:"response,omitempty"`
	Error            string    `json:"error,omitempty"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	PromptTokens     int       `json:"prompt_tokens"`
	ResponseTokens   int       `json:"response_tokens,omitempty"`
	Attempt          uint64    `json:"attempt"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	StartedAt        time.Time `json:"started_at,omitempty"`
	CompletedAt      time.Time `json:"completed_at,omitempty"`
}

// Duration returns the time from the first claim to settlement, or zero.
func (v RecordView) Duration() time.Duration {
	if v.StartedAt.IsZero() || v.CompletedAt.IsZero() {
		return 0
	}
	return v.CompletedAt.Sub(v.StartedAt)
}
