package model

import (
	"time"

	"hsoj/internal/judge/result"
)

// JudgeStatus is the cached progress snapshot of a submission.
type JudgeStatus struct {
	SubmissionID int64         `json:"submission_id"`
	Status       result.Status `json:"status"`
	StatusText   string        `json:"status_text"`
	Score        int           `json:"score"`
	Done         int           `json:"done"`
	Total        int           `json:"total"`
	Error        string        `json:"error,omitempty"`
	UpdatedAt    int64         `json:"updated_at"`
}

// PendingStatus is the snapshot written when a submission is accepted for judging.
func PendingStatus(submissionID int64, total int) JudgeStatus {
	return JudgeStatus{
		SubmissionID: submissionID,
		Status:       result.StatusPending,
		StatusText:   result.StatusPending.String(),
		Total:        total,
		UpdatedAt:    time.Now().Unix(),
	}
}

// FinalStatus is the snapshot of a finished submission.
func FinalStatus(submissionID int64, outcome result.Outcome) JudgeStatus {
	return JudgeStatus{
		SubmissionID: submissionID,
		Status:       outcome.Status,
		StatusText:   outcome.Status.String(),
		Score:        outcome.Score,
		Done:         len(outcome.Results),
		Total:        len(outcome.Results),
		Error:        outcome.Error,
		UpdatedAt:    time.Now().Unix(),
	}
}

// Finished reports whether the snapshot carries a verdict.
func (s JudgeStatus) Finished() bool {
	return s.Status != result.StatusPending
}

// StatusEventFinal marks the event emitted once a verdict is stored.
const StatusEventFinal = "final"

// StatusEvent is published when a submission reaches its final status.
type StatusEvent struct {
	Type      string      `json:"type"`
	Status    JudgeStatus `json:"status"`
	CreatedAt int64       `json:"created_at"`
}
