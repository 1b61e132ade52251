package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hsoj/internal/common/db"
	"hsoj/internal/judge/result"
	appErr "hsoj/pkg/errors"
)

// Submission is a stored submission row.
type Submission struct {
	ID        int64
	UserID    int64
	ProblemID int64
	Language  string
	Status    result.Status
	Score     int
	Detail    Detail
	CreatedAt time.Time
}

// Detail is the JSON document kept in submissions.detail.
type Detail struct {
	Code    string               `json:"code"`
	Error   string               `json:"error,omitempty"`
	Results []result.JudgeResult `json:"results,omitempty"`
}

// SubmissionStore persists submissions and their verdicts.
type SubmissionStore interface {
	Create(ctx context.Context, submission *Submission) (int64, error)
	GetByID(ctx context.Context, id int64) (*Submission, error)
	SaveOutcome(ctx context.Context, id int64, outcome result.Outcome, code string) error
}

// MySQLSubmissionStore implements SubmissionStore on the submissions table.
type MySQLSubmissionStore struct {
	db db.Database
}

// NewSubmissionStore creates a MySQL-backed store.
func NewSubmissionStore(database db.Database) *MySQLSubmissionStore {
	return &MySQLSubmissionStore{db: database}
}

const submissionColumns = "id, user_id, problem_id, language, status, score, time, detail"

// Create inserts a pending submission and returns its id.
func (r *MySQLSubmissionStore) Create(ctx context.Context, submission *Submission) (int64, error) {
	if submission == nil {
		return 0, appErr.ValidationError("submission", "required")
	}
	if submission.ProblemID <= 0 {
		return 0, appErr.ValidationError("problem_id", "required")
	}
	if submission.Language == "" {
		return 0, appErr.ValidationError("language", "required")
	}
	submission.Status = result.StatusPending
	submission.Score = 0
	submission.Detail = Detail{Code: submission.Detail.Code}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now()
	}
	detail, err := json.Marshal(submission.Detail)
	if err != nil {
		return 0, fmt.Errorf("marshal detail failed: %w", err)
	}

	query := `
		INSERT INTO submissions (user_id, problem_id, language, status, score, time, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.Exec(ctx, query,
		submission.UserID,
		submission.ProblemID,
		submission.Language,
		int(submission.Status),
		submission.Score,
		submission.CreatedAt,
		string(detail),
	)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "insert submission failed")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "read submission id failed")
	}
	submission.ID = id
	return id, nil
}

// GetByID loads a submission.
func (r *MySQLSubmissionStore) GetByID(ctx context.Context, id int64) (*Submission, error) {
	if id <= 0 {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, id)

	var (
		s      Submission
		status int
		detail []byte
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.ProblemID, &s.Language, &status, &s.Score, &s.CreatedAt, &detail); err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithMessagef("submission %d not found", id)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query submission failed")
	}
	s.Status = result.Status(status)
	if len(detail) > 0 {
		if err := json.Unmarshal(detail, &s.Detail); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "decode submission detail failed")
		}
	}
	return &s, nil
}

// SaveOutcome stores the verdict of a judged submission in one statement.
func (r *MySQLSubmissionStore) SaveOutcome(ctx context.Context, id int64, outcome result.Outcome, code string) error {
	if id <= 0 {
		return appErr.ValidationError("submission_id", "required")
	}
	detail, err := json.Marshal(Detail{Code: code, Error: outcome.Error, Results: outcome.Results})
	if err != nil {
		return fmt.Errorf("marshal detail failed: %w", err)
	}
	res, err := r.db.Exec(ctx,
		"UPDATE submissions SET status = ?, score = ?, detail = ? WHERE id = ?",
		int(outcome.Status), outcome.Score, string(detail), id,
	)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update submission failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "read affected rows failed")
	}
	if affected == 0 {
		return appErr.New(appErr.SubmissionNotFound).WithMessagef("submission %d not found", id)
	}
	return nil
}
