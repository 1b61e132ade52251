package service

import (
	"context"
	"encoding/json"

	"hsoj/internal/common/mq"
	"hsoj/internal/judge/model"
	appErr "hsoj/pkg/errors"
	"hsoj/pkg/utils/contextkey"
	"hsoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// HandleMessage consumes one judge task. Malformed tasks are dropped. An error
// is returned only when the task should be delivered again.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return nil
	}
	var payload model.JudgeMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		logger.Warn(ctx, "drop undecodable judge message", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	if err := payload.Validate(); err != nil {
		logger.Warn(ctx, "drop invalid judge message", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, payload.SubmissionID)
	if payload.UserID > 0 {
		ctx = context.WithValue(ctx, contextkey.UserID, payload.UserID)
	}

	if err := s.acquireSlot(ctx, s.slotWait); err != nil {
		if appErr.Is(err, appErr.JudgeQueueFull) && s.retry.enabled() {
			return s.retry.Requeue(ctx, s.queue, msg)
		}
		return err
	}
	defer s.releaseSlot()

	p, err := s.catalog.Get(ctx, payload.ProblemID)
	if err != nil {
		return s.recoverWithUE(ctx, payload.SubmissionID, payload.Code, err)
	}
	req := JudgeRequest{
		UserID:       payload.UserID,
		Problem:      p,
		Language:     payload.Language,
		Code:         payload.Code,
		SubmissionID: payload.SubmissionID,
	}
	if err := s.Judge(ctx, req); err != nil {
		return s.recoverWithUE(ctx, payload.SubmissionID, payload.Code, err)
	}
	return nil
}
