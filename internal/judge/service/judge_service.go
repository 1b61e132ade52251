package service

import (
	"context"
	"fmt"
	"time"

	"hsoj/internal/common/mq"
	"hsoj/internal/judge/model"
	"hsoj/internal/judge/problem"
	"hsoj/internal/judge/result"
	appErr "hsoj/pkg/errors"
	"hsoj/pkg/utils/contextkey"
	"hsoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultSlotWait = 2 * time.Second

// OutcomeStore persists final verdicts.
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, id int64, outcome result.Outcome, code string) error
}

// StatusStore caches status snapshots.
type StatusStore interface {
	Save(ctx context.Context, status model.JudgeStatus) error
}

// JudgeRequest is the upstream judge call.
type JudgeRequest struct {
	UserID       int64
	Problem      problem.Problem
	Language     string
	Code         string
	SubmissionID int64
}

// Service runs judge requests and records their outcomes.
type Service struct {
	judger        *Judger
	catalog       problem.Catalog
	store         OutcomeStore
	status        StatusStore
	queue         mq.Producer
	retry         PoolRetry
	statusTimeout time.Duration
	slotWait      time.Duration
	sem           chan struct{}
}

// Config holds service dependencies and settings.
type Config struct {
	Judger  *Judger
	Catalog problem.Catalog
	Store   OutcomeStore
	// Status is optional.
	Status StatusStore
	// Queue and Retry requeue consumed messages while the pool is full.
	Queue          mq.Producer
	Retry          PoolRetry
	StatusTimeout  time.Duration
	SlotWait       time.Duration
	WorkerPoolSize int
}

// NewService creates a judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Judger == nil {
		return nil, fmt.Errorf("judger is required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("problem catalog is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	slotWait := cfg.SlotWait
	if slotWait <= 0 {
		slotWait = defaultSlotWait
	}
	return &Service{
		judger:        cfg.Judger,
		catalog:       cfg.Catalog,
		store:         cfg.Store,
		status:        cfg.Status,
		queue:         cfg.Queue,
		retry:         cfg.Retry,
		statusTimeout: cfg.StatusTimeout,
		slotWait:      slotWait,
		sem:           make(chan struct{}, poolSize),
	}, nil
}

// Judge runs the submission and stores the outcome. The returned error only
// reports a failure to store it.
func (s *Service) Judge(ctx context.Context, req JudgeRequest) error {
	ctx = context.WithValue(context.WithoutCancel(ctx), contextkey.SubmissionID, req.SubmissionID)
	s.saveStatus(ctx, model.PendingStatus(req.SubmissionID, req.Problem.Judge.TestCase))

	run := s.run(ctx, req)
	return s.finish(ctx, req.SubmissionID, req.Code, run.Outcome)
}

// JudgeAsync judges req in the background once a slot is free. The returned
// channel is closed when the outcome has been stored.
func (s *Service) JudgeAsync(ctx context.Context, req JudgeRequest) <-chan struct{} {
	done := make(chan struct{})
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(done)
		if err := s.acquireSlot(ctx, 0); err != nil {
			_ = s.recoverWithUE(ctx, req.SubmissionID, req.Code, err)
			return
		}
		defer s.releaseSlot()
		if err := s.Judge(ctx, req); err != nil {
			_ = s.recoverWithUE(ctx, req.SubmissionID, req.Code, err)
		}
	}()
	return done
}

func (s *Service) run(ctx context.Context, req JudgeRequest) (run RunResult) {
	defer func() {
		if r := recover(); r != nil {
			err := appErr.Newf(appErr.JudgeSystemError, "judge panic: %v", r)
			logger.Error(ctx, "judge panic", zap.Any("panic", r))
			run = RunResult{Kind: RunErrored, Outcome: result.Errored(err), Err: err}
		}
	}()
	return s.judger.Run(ctx, Request{
		SubmissionID: req.SubmissionID,
		Problem:      req.Problem,
		Language:     req.Language,
		Code:         req.Code,
	})
}

func (s *Service) finish(ctx context.Context, id int64, code string, outcome result.Outcome) error {
	if err := s.store.SaveOutcome(ctx, id, outcome, code); err != nil {
		logger.Error(ctx, "store outcome failed", zap.Int64("submission_id", id), zap.Error(err))
		return err
	}
	s.saveStatus(ctx, model.FinalStatus(id, outcome))
	return nil
}

// recoverWithUE stores a UE outcome carrying cause for a submission that
// could not be judged or whose outcome could not be stored.
func (s *Service) recoverWithUE(ctx context.Context, id int64, code string, cause error) error {
	logger.Warn(ctx, "judge failed, storing UE outcome", zap.Int64("submission_id", id), zap.Error(cause))
	if err := s.finish(ctx, id, code, result.Errored(cause)); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "store UE outcome failed")
	}
	return nil
}

func (s *Service) saveStatus(ctx context.Context, status model.JudgeStatus) {
	if s.status == nil {
		return
	}
	ctxStatus := ctx
	if s.statusTimeout > 0 {
		var cancel context.CancelFunc
		ctxStatus, cancel = context.WithTimeout(ctx, s.statusTimeout)
		defer cancel()
	}
	if err := s.status.Save(ctxStatus, status); err != nil {
		logger.Warn(ctx, "update judge status failed", zap.Int64("submission_id", status.SubmissionID), zap.Error(err))
	}
}
