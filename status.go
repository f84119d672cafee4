package aiqueue

// Status is the lifecycle state of a Record.
// Use the exported constants instead of raw strings to avoid typos.
type Status string

const (
	// StatusNotRequested is the state of a finding nobody asked about yet.
	StatusNotRequested Status = "NOT_REQUESTED"
	// StatusPending records wait in the queue for a free slot.
	StatusPending Status = "PENDING"
	// StatusInProgress records have a backend call outstanding.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCompleted records carry the generated response.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed records exhausted their budget or failed permanently.
	StatusFailed Status = "FAILED"
	// StatusTimeout records exhausted their budget on timeouts.
	StatusTimeout Status = "TIMEOUT"
	// StatusRateLimited records exhausted their budget on rate limiting.
	StatusRateLimited Status = "RATE_LIMITED"
	// StatusCancelled records were cancelled by the caller.
	StatusCancelled Status = "CANCELLED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusNotRequested, StatusPending, StatusInProgress, StatusCompleted,
	StatusCancelled, StatusFailed, StatusTimeout, StatusRateLimited,
}

var displayNames = map[Status]string{
	StatusNotRequested: "Not Requested",
	StatusPending:      "Pending",
	StatusInProgress:   "In Progress",
	StatusCompleted:    "Completed",
	StatusCancelled:    "Cancelled",
	StatusFailed:       "Failed - Click to Retry",
	StatusTimeout:      "Timeout - Click to Retry",
	StatusRateLimited:  "Rate Limited - Click to Retry",
}

// String returns the raw string value of the status.
func (s Status) String() string { return string(s) }

// DisplayName returns the label shown to operators.
func (s Status) DisplayName() string {
	if n, ok := displayNames[s]; ok {
		return n
	}
	return string(s)
}

// IsRetryable reports whether Retry may re-submit a record in this status.
func (s Status) IsRetryable() bool {
	return s == StatusFailed || s == StatusTimeout || s == StatusRateLimited
}

// IsFinal reports whether the status is terminal.
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusCancelled || s.IsRetryable()
}

// IsCancellable reports whether Cancel has an effect in this status.
func (s Status) IsCancellable() bool {
	return s == StatusPending || s == StatusInProgress
}

// ParseStatus converts a string into a Status, returning ErrUnknownStatus for unknown values.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", ErrUnknownStatus
}
