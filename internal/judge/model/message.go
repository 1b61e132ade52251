package model

import (
	"strings"

	appErr "hsoj/pkg/errors"
)

// JudgeMessage is the queue payload of a judge task.
type JudgeMessage struct {
	SubmissionID int64  `json:"submission_id"`
	UserID       int64  `json:"user_id"`
	ProblemID    int64  `json:"problem_id"`
	Language     string `json:"language"`
	Code         string `json:"code"`
}

// Validate checks the fields a judge task cannot run without.
func (m JudgeMessage) Validate() error {
	switch {
	case m.SubmissionID <= 0:
		return appErr.ValidationError("submission_id", "required")
	case m.ProblemID <= 0:
		return appErr.ValidationError("problem_id", "required")
	case strings.TrimSpace(m.Language) == "":
		return appErr.ValidationError("language", "required")
	case m.Code == "":
		return appErr.ValidationError("code", "required")
	}
	return nil
}
