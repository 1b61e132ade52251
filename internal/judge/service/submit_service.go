package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"hsoj/internal/common/mq"
	"hsoj/internal/judge/model"
	"hsoj/internal/judge/problem"
	"hsoj/internal/judge/repository"
	"hsoj/internal/judge/result"
	appErr "hsoj/pkg/errors"
	"hsoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultMaxCodeBytes = 64 * 1024

// LanguageSet reports which languages can be compiled.
type LanguageSet interface {
	Supports(language string) bool
	Languages() []string
}

// StatusReader reads cached status snapshots.
type StatusReader interface {
	StatusStore
	Get(ctx context.Context, submissionID int64) (model.JudgeStatus, error)
}

// SubmitInput is a new submission.
type SubmitInput struct {
	UserID    int64
	ProblemID int64
	Language  string
	Code      string
}

// SubmitService accepts submissions and hands them to the judge, either via
// the judge queue or, without one, in process.
type SubmitService struct {
	languages    LanguageSet
	catalog      problem.Catalog
	submissions  repository.SubmissionStore
	status       StatusReader
	queue        mq.Producer
	topic        string
	judge        *Service
	maxCodeBytes int
}

// SubmitConfig holds SubmitService dependencies.
type SubmitConfig struct {
	Languages   LanguageSet
	Catalog     problem.Catalog
	Submissions repository.SubmissionStore
	Status      StatusReader
	// Queue and Topic publish judge tasks. Judge is used when Queue is nil.
	Queue        mq.Producer
	Topic        string
	Judge        *Service
	MaxCodeBytes int
}

// NewSubmitService creates a SubmitService.
func NewSubmitService(cfg SubmitConfig) (*SubmitService, error) {
	if cfg.Languages == nil {
		return nil, fmt.Errorf("language set is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("problem catalog is required")
	}
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	if cfg.Queue != nil && cfg.Topic == "" {
		return nil, fmt.Errorf("judge topic is required")
	}
	if cfg.Queue == nil && cfg.Judge == nil {
		return nil, fmt.Errorf("either a judge queue or an in-process judge is required")
	}
	maxCode := cfg.MaxCodeBytes
	if maxCode <= 0 {
		maxCode = defaultMaxCodeBytes
	}
	return &SubmitService{
		languages:    cfg.Languages,
		catalog:      cfg.Catalog,
		submissions:  cfg.Submissions,
		status:       cfg.Status,
		queue:        cfg.Queue,
		topic:        cfg.Topic,
		judge:        cfg.Judge,
		maxCodeBytes: maxCode,
	}, nil
}

// Languages returns the supported language ids, sorted.
func (s *SubmitService) Languages() []string {
	langs := s.languages.Languages()
	sort.Strings(langs)
	return langs
}

// Submit stores a pending submission and dispatches it for judging.
func (s *SubmitService) Submit(ctx context.Context, in SubmitInput) (int64, error) {
	if in.ProblemID <= 0 {
		return 0, appErr.ValidationError("problem_id", "required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return 0, appErr.ValidationError("code", "required")
	}
	if len(in.Code) > s.maxCodeBytes {
		return 0, appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", s.maxCodeBytes)
	}
	if !s.languages.Supports(in.Language) {
		return 0, appErr.Newf(appErr.LanguageNotSupported, "unsupported language: %s", in.Language)
	}
	p, err := s.catalog.Get(ctx, in.ProblemID)
	if err != nil {
		return 0, err
	}

	id, err := s.submissions.Create(ctx, &repository.Submission{
		UserID:    in.UserID,
		ProblemID: in.ProblemID,
		Language:  in.Language,
		Detail:    repository.Detail{Code: in.Code},
	})
	if err != nil {
		return 0, err
	}
	if s.status != nil {
		if err := s.status.Save(ctx, model.PendingStatus(id, p.Judge.TestCase)); err != nil {
			logger.Warn(ctx, "cache pending status failed", zap.Int64("submission_id", id), zap.Error(err))
		}
	}

	if s.queue == nil {
		s.judge.JudgeAsync(ctx, JudgeRequest{
			UserID:       in.UserID,
			Problem:      p,
			Language:     in.Language,
			Code:         in.Code,
			SubmissionID: id,
		})
		return id, nil
	}
	if err := s.enqueue(ctx, id, in); err != nil {
		outcome := result.Errored(err)
		if saveErr := s.submissions.SaveOutcome(context.WithoutCancel(ctx), id, outcome, in.Code); saveErr != nil {
			logger.Error(ctx, "store UE outcome failed", zap.Int64("submission_id", id), zap.Error(saveErr))
		}
		return 0, err
	}
	return id, nil
}

func (s *SubmitService) enqueue(ctx context.Context, id int64, in SubmitInput) error {
	body, err := json.Marshal(model.JudgeMessage{
		SubmissionID: id,
		UserID:       in.UserID,
		ProblemID:    in.ProblemID,
		Language:     in.Language,
		Code:         in.Code,
	})
	if err != nil {
		return fmt.Errorf("marshal judge message failed: %w", err)
	}
	msg := mq.NewMessage(body)
	msg.ID = strconv.FormatInt(id, 10)
	if err := s.queue.Publish(ctx, s.topic, msg); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "enqueue judge task failed")
	}
	return nil
}

// GetStatus returns the cached snapshot, falling back to the stored submission.
func (s *SubmitService) GetStatus(ctx context.Context, id int64) (model.JudgeStatus, error) {
	if id <= 0 {
		return model.JudgeStatus{}, appErr.ValidationError("submission_id", "required")
	}
	if s.status != nil {
		status, err := s.status.Get(ctx, id)
		if err == nil {
			return status, nil
		}
		if !appErr.Is(err, appErr.NotFound) {
			logger.Warn(ctx, "read cached status failed", zap.Int64("submission_id", id), zap.Error(err))
		}
	}
	sub, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return model.JudgeStatus{}, err
	}
	status := model.JudgeStatus{
		SubmissionID: sub.ID,
		Status:       sub.Status,
		StatusText:   sub.Status.String(),
		Score:        sub.Score,
		Error:        sub.Detail.Error,
		UpdatedAt:    sub.CreatedAt.Unix(),
	}
	if status.Finished() {
		status.Done = len(sub.Detail.Results)
		status.Total = len(sub.Detail.Results)
	}
	return status, nil
}
