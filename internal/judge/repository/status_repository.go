package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"hsoj/internal/common/cache"
	"hsoj/internal/judge/model"
	appErr "hsoj/pkg/errors"
	"hsoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	statusKeyPrefix  = "judge:status:"
	defaultStatusTTL = 24 * time.Hour
)

// StatusRepository keeps judge status snapshots in the cache and announces
// final ones through the publisher.
type StatusRepository struct {
	cache     cache.BasicOps
	publisher StatusEventPublisher
	ttl       time.Duration
}

// NewStatusRepository creates a repository. publisher may be nil.
func NewStatusRepository(cacheClient cache.BasicOps, ttl time.Duration, publisher StatusEventPublisher) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, publisher: publisher, ttl: ttl}
}

func statusKey(submissionID int64) string {
	return statusKeyPrefix + strconv.FormatInt(submissionID, 10)
}

// Get returns the snapshot of a submission. A missing key yields NotFound.
func (r *StatusRepository) Get(ctx context.Context, submissionID int64) (model.JudgeStatus, error) {
	if submissionID <= 0 {
		return model.JudgeStatus{}, appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return model.JudgeStatus{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, statusKey(submissionID))
	if err != nil {
		return model.JudgeStatus{}, appErr.Wrapf(err, appErr.CacheError, "read status failed")
	}
	if val == "" {
		return model.JudgeStatus{}, appErr.New(appErr.NotFound).WithMessage("submission status not found")
	}
	var status model.JudgeStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return model.JudgeStatus{}, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return status, nil
}

// Save stores the snapshot. Final snapshots are also published; a publish
// failure is logged and does not fail the save.
func (r *StatusRepository) Save(ctx context.Context, status model.JudgeStatus) error {
	if status.SubmissionID <= 0 {
		return appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	if err := r.cache.Set(ctx, statusKey(status.SubmissionID), string(data), r.ttl); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	if status.Finished() && r.publisher != nil {
		if err := r.publisher.PublishFinalStatus(ctx, status); err != nil {
			logger.Warn(ctx, "publish final status failed",
				zap.Int64("submission_id", status.SubmissionID), zap.Error(err))
		}
	}
	return nil
}
