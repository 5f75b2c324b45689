package domain

import "time"

// Job is one queued unit of work carrying a document through the pipeline.
type Job struct {
	DocumentID   string    `json:"document_id"`
	NotifyTarget string    `json:"notify_target"`
	Retries      int       `json:"retries"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	StartedAt    time.Time `json:"-"`
}

type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultRetrying  ResultStatus = "retrying"
	ResultSkipped   ResultStatus = "skipped"
	ResultDeferred  ResultStatus = "deferred"
)

// ProcessResult is the structured, log-friendly outcome of one job attempt.
type ProcessResult struct {
	Status         ResultStatus   `json:"status"`
	DocumentID     string         `json:"document_id"`
	SummaryLength  *int           `json:"summary_length,omitempty"`
	ProcessingTime *time.Duration `json:"processing_time,omitempty"`
	Notified       bool           `json:"notified"`
	Error          string         `json:"error,omitempty"`
}

type OutcomeAction int

const (
	// OutcomeDone finalizes the job; the queue acknowledges it.
	OutcomeDone OutcomeAction = iota
	// OutcomeRetry asks the queue to redeliver the job after Delay and
	// counts the attempt against the retry budget.
	OutcomeRetry
	// OutcomeDefer redelivers the job after Delay without counting an attempt.
	OutcomeDefer
)

func (a OutcomeAction) String() string {
	switch a {
	case OutcomeDone:
		return "done"
	case OutcomeRetry:
		return "retry"
	case OutcomeDefer:
		return "defer"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Action OutcomeAction
	Delay  time.Duration
	Result ProcessResult
	Err    error
}

func Done(result ProcessResult, err error) Outcome {
	return Outcome{Action: OutcomeDone, Result: result, Err: err}
}

func Retry(delay time.Duration, result ProcessResult, err error) Outcome {
	return Outcome{Action: OutcomeRetry, Delay: delay, Result: result, Err: err}
}

func Defer(delay time.Duration, result ProcessResult) Outcome {
	return Outcome{Action: OutcomeDefer, Delay: delay, Result: result}
}
