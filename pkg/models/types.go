package models

import "time"

// TransferItem is one candidate video discovered in the source chat
type TransferItem struct {
	Identity    string `json:"identity"` // tg:<chat>:<message id>, the duplicate-detection key
	DisplayName string `json:"display_name"`
	SizeBytes   int64  `json:"size_bytes"`
	MimeType    string `json:"mime_type,omitempty"`
	MessageID   int    `json:"message_id"`
	Chat        string `json:"chat"`

	// MediaRef is an opaque handle owned by the source adapter.
	MediaRef any `json:"-"`
}

// TransferRecord is the persisted proof that an item reached the sink
type TransferRecord struct {
	Name        string    `json:"name,omitempty"`
	SinkID      string    `json:"sink_id"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	SourceID    string    `json:"source_id,omitempty"`
	Checksum    string    `json:"md5,omitempty"`
}

// Phase of the current batch as seen by status readers
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseEnumerating     Phase = "enumerating"
	PhaseTransferringIn  Phase = "transferring-in"
	PhaseTransferringOut Phase = "transferring-out"
	PhaseCompleted       Phase = "completed"
	PhaseFailed          Phase = "failed"
)

// ProgressSnapshot is an immutable view of the running batch.
// A new value replaces the previous one on every update.
type ProgressSnapshot struct {
	Phase       Phase     `json:"phase"`
	RunID       string    `json:"run_id,omitempty"`
	CurrentItem *string   `json:"current_item"`
	ItemIndex   int       `json:"item_index"`
	ItemCount   int       `json:"item_count"`
	BytesTotal  int64     `json:"bytes_total"`
	BytesMoved  int64     `json:"bytes_moved"`
	Rate        float64   `json:"rate_bytes_per_sec"`
	ETA         string    `json:"eta,omitempty"`
	Succeeded   int       `json:"succeeded"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	LastError   string    `json:"last_error,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Percent returns moved/total in [0,100]
func (p ProgressSnapshot) Percent() float64 {
	if p.BytesTotal <= 0 {
		return 0
	}
	return float64(p.BytesMoved) / float64(p.BytesTotal) * 100
}

// Outcome of one pipeline execution
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Reason qualifies skipped and failed outcomes, and a succeeded one whose
// record could not be saved
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonAlreadyTransferred Reason = "already-transferred"
	ReasonOversized          Reason = "oversized"
	ReasonQuotaExceeded      Reason = "quota-exceeded"
	ReasonSourceGone         Reason = "source-gone"
	ReasonSourceError        Reason = "source-error"
	ReasonSinkError          Reason = "sink-error"
	ReasonAuth               Reason = "auth"
	ReasonIntegrity          Reason = "integrity"
	ReasonCancelled          Reason = "cancelled"
	ReasonTrackerError       Reason = "tracker-error"
)

// ItemResult is the tagged result of transferring one item
type ItemResult struct {
	Item     TransferItem    `json:"item"`
	Outcome  Outcome         `json:"outcome"`
	Reason   Reason          `json:"reason,omitempty"`
	Record   *TransferRecord `json:"record,omitempty"`
	Err      error           `json:"-"`
	Attempts int             `json:"attempts"`
	Duration time.Duration   `json:"duration"`
}

func Succeeded(item TransferItem, rec TransferRecord) ItemResult {
	return ItemResult{Item: item, Outcome: OutcomeSucceeded, Record: &rec}
}

func Skipped(item TransferItem, reason Reason) ItemResult {
	return ItemResult{Item: item, Outcome: OutcomeSkipped, Reason: reason}
}

func Failed(item TransferItem, reason Reason, err error) ItemResult {
	return ItemResult{Item: item, Outcome: OutcomeFailed, Reason: reason, Err: err}
}

// ItemError is a per-item error kept in the batch summary. Outcome is
// succeeded when the object reached the sink but recording it did not.
type ItemError struct {
	Identity string    `json:"identity"`
	Name     string    `json:"name"`
	Outcome  Outcome   `json:"outcome"`
	Reason   Reason    `json:"reason"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// BatchRun summarizes one full pass over the source
type BatchRun struct {
	ID              string      `json:"id"`
	Container       string      `json:"container"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at,omitempty"`
	TotalCandidates int         `json:"total_candidates"`
	SkippedCount    int         `json:"skipped_count"`
	OversizedCount  int         `json:"oversized_count"`
	SucceededCount  int         `json:"succeeded_count"`
	FailedCount     int         `json:"failed_count"`
	BytesMoved      int64       `json:"bytes_moved"`
	Errors          []ItemError `json:"errors,omitempty"`
	Aborted         string      `json:"aborted,omitempty"`
}

// Duration of the run, or time elapsed so far if still running
func (r BatchRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Apply folds an item result into the run counters
func (r *BatchRun) Apply(res ItemResult) {
	switch res.Outcome {
	case OutcomeSucceeded:
		r.SucceededCount++
		if res.Record != nil {
			r.BytesMoved += res.Record.SizeBytes
		}
	case OutcomeSkipped:
		r.SkippedCount++
		if res.Reason == ReasonOversized {
			r.OversizedCount++
		}
	case OutcomeFailed:
		r.FailedCount++
	}

	if res.Outcome != OutcomeFailed && res.Err == nil {
		return
	}
	msg := ""
	if res.Err != nil {
		msg = res.Err.Error()
	}
	r.Errors = append(r.Errors, ItemError{
		Identity: res.Item.Identity,
		Name:     res.Item.DisplayName,
		Outcome:  res.Outcome,
		Reason:   res.Reason,
		Message:  msg,
		At:       time.Now(),
	})
}

// TrackerSummary is what the stats endpoint reports
type TrackerSummary struct {
	Count      int      `json:"count"`
	TotalSize  int64    `json:"total_size"`
	RecentKeys []string `json:"recent_keys"`
}
