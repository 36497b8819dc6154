package models

import "time"

// ProgressStatus is the persisted outcome of a date
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)

// DateProgress is the checkpoint view of one calendar date
type DateProgress struct {
	Date          string         `json:"date"`
	Status        ProgressStatus `json:"status"`
	LastAttemptAt time.Time      `json:"lastAttemptAt,omitempty"`
	AttemptCount  int            `json:"attemptCount"`
}

// DateState is a step in the per-date collection state machine
type DateState string

const (
	StateScheduled   DateState = "scheduled"
	StateFetching    DateState = "fetching"
	StateNormalizing DateState = "normalizing"
	StateUpserting   DateState = "upserting"
	StateRetrying    DateState = "retrying"
	StateCommitted   DateState = "committed"
	StateFailed      DateState = "failed"

	// Not part of the checkpointed lifecycle: the date is left for a later run.
	StateInterrupted DateState = "interrupted"
	StateSkipped     DateState = "skipped"
)

// DroppedRecord describes a raw row discarded during normalization
type DroppedRecord struct {
	Date   string `json:"date"`
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// RunStats aggregates the outcome of one collection pass
type RunStats struct {
	Scheduled       int             `json:"scheduledDates"`
	Committed       int             `json:"committedDates"`
	Failed          int             `json:"failedDates"`
	Skipped         int             `json:"skippedDates"`
	Interrupted     int             `json:"interruptedDates"`
	RecordsUpserted int             `json:"recordsUpserted"`
	FailedDates     []string        `json:"failedDateList,omitempty"`
	Dropped         []DroppedRecord `json:"droppedRecords,omitempty"`
	Cancelled       bool            `json:"cancelled"`
	StartedAt       time.Time       `json:"startedAt"`
	FinishedAt      time.Time       `json:"finishedAt"`
}
