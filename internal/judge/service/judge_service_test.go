package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"hsoj/internal/common/mq"
	"hsoj/internal/judge/executor"
	"hsoj/internal/judge/model"
	"hsoj/internal/judge/problem"
	"hsoj/internal/judge/result"
	"hsoj/internal/judge/service"
	appErr "hsoj/pkg/errors"
)

type savedOutcome struct {
	id      int64
	outcome result.Outcome
	code    string
}

type fakeStore struct {
	mu    sync.Mutex
	saved []savedOutcome
	// failures makes the first N saves fail.
	failures int
}

func (f *fakeStore) SaveOutcome(ctx context.Context, id int64, outcome result.Outcome, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("database unavailable")
	}
	f.saved = append(f.saved, savedOutcome{id: id, outcome: outcome, code: code})
	return nil
}

func (f *fakeStore) last() savedOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved[len(f.saved)-1]
}

type fakeStatus struct {
	mu       sync.Mutex
	statuses []model.JudgeStatus
}

func (f *fakeStatus) Save(ctx context.Context, status model.JudgeStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeCatalog struct {
	problems map[int64]problem.Problem
}

func (f *fakeCatalog) Get(ctx context.Context, id int64) (problem.Problem, error) {
	p, ok := f.problems[id]
	if !ok {
		return problem.Problem{}, appErr.New(appErr.ProblemNotFound).WithMessage("problem not found")
	}
	return p, nil
}

type fakeQueue struct {
	mu        sync.Mutex
	published map[string][]*mq.Message
}

func (f *fakeQueue) Publish(ctx context.Context, topic string, message *mq.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = make(map[string][]*mq.Message)
	}
	f.published[topic] = append(f.published[topic], message)
	return nil
}

type serviceFixture struct {
	svc     *service.Service
	store   *fakeStore
	status  *fakeStatus
	runner  *fakeRunner
	problem problem.Problem
}

func newServiceFixture(t *testing.T, cfg service.Config) *serviceFixture {
	t.Helper()
	p := newProblem(t, "1", "2")
	runner := &fakeRunner{test: func(i int, out string) executor.ExecResult {
		return produce(t, out, []string{"1", "2"}[i], 0)
	}}
	store := &fakeStore{}
	status := &fakeStatus{}
	cfg.Judger = newJudger(t, runner, service.JudgerConfig{})
	if cfg.Catalog == nil {
		cfg.Catalog = &fakeCatalog{problems: map[int64]problem.Problem{p.ID: p}}
	}
	cfg.Store = store
	cfg.Status = status
	svc, err := service.NewService(cfg)
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	return &serviceFixture{svc: svc, store: store, status: status, runner: runner, problem: p}
}

func TestJudgePersistsOutcomeAndStatus(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, service.Config{})
	err := f.svc.Judge(context.Background(), service.JudgeRequest{
		UserID: 1, Problem: f.problem, Language: "cpp", Code: "src", SubmissionID: 31,
	})
	if err != nil {
		t.Fatalf("judge failed: %v", err)
	}
	saved := f.store.last()
	if saved.id != 31 || saved.code != "src" || saved.outcome.Status != result.StatusAC || saved.outcome.Score != 100 {
		t.Fatalf("unexpected saved outcome %+v", saved)
	}
	if len(f.status.statuses) != 2 {
		t.Fatalf("expected pending and final snapshots, got %d", len(f.status.statuses))
	}
	pending, final := f.status.statuses[0], f.status.statuses[1]
	if pending.Status != result.StatusPending || pending.Total != 2 {
		t.Fatalf("unexpected pending snapshot %+v", pending)
	}
	if !final.Finished() || final.Status != result.StatusAC || final.Done != 2 {
		t.Fatalf("unexpected final snapshot %+v", final)
	}
}

func TestJudgeStoresCompileError(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, service.Config{})
	f.runner.compile = executor.ExecResult{ExitCode: 2, Stderr: "syntax error"}
	if err := f.svc.Judge(context.Background(), service.JudgeRequest{Problem: f.problem, Language: "cpp", Code: "bad", SubmissionID: 32}); err != nil {
		t.Fatalf("judge failed: %v", err)
	}
	saved := f.store.last()
	if saved.outcome.Status != result.StatusCE || len(saved.outcome.Results) != 0 || saved.code != "bad" {
		t.Fatalf("unexpected saved outcome %+v", saved)
	}
}

func TestJudgeReportsPersistenceFailure(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, service.Config{})
	f.store.failures = 1
	err := f.svc.Judge(context.Background(), service.JudgeRequest{Problem: f.problem, Language: "cpp", Code: "x", SubmissionID: 33})
	if err == nil {
		t.Fatalf("expected persistence error")
	}
	for _, s := range f.status.statuses {
		if s.Finished() {
			t.Fatalf("final status must not be cached when the outcome was not stored")
		}
	}
}

func TestJudgeAsyncDowngradesFailureToUE(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, service.Config{})
	f.store.failures = 1
	done := f.svc.JudgeAsync(context.Background(), service.JudgeRequest{Problem: f.problem, Language: "cpp", Code: "x", SubmissionID: 34})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("async judge did not finish")
	}
	saved := f.store.last()
	if saved.id != 34 || saved.outcome.Status != result.StatusUE || saved.outcome.Error == "" {
		t.Fatalf("expected stored UE outcome, got %+v", saved)
	}
}

func TestJudgeRecoversFromPanic(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, service.Config{})
	f.runner.test = func(i int, out string) executor.ExecResult {
		panic("runner exploded")
	}
	if err := f.svc.Judge(context.Background(), service.JudgeRequest{Problem: f.problem, Language: "cpp", Code: "x", SubmissionID: 35}); err != nil {
		t.Fatalf("judge failed: %v", err)
	}
	saved := f.store.last()
	if saved.outcome.Status != result.StatusUE || len(saved.outcome.Results) != 0 {
		t.Fatalf("expected UE outcome after panic, got %+v", saved.outcome)
	}
}

func judgeMessage(t *testing.T, payload model.JudgeMessage) *mq.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return mq.NewMessage(body)
}

func TestHandleMessageJudgesTask(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, service.Config{})
	msg := judgeMessage(t, model.JudgeMessage{SubmissionID: 50, UserID: 2, ProblemID: f.problem.ID, Language: "cpp", Code: "x"})
	if err := f.svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if saved := f.store.last(); saved.id != 50 || saved.outcome.Status != result.StatusAC {
		t.Fatalf("unexpected saved outcome %+v", saved)
	}
}

func TestHandleMessageDropsInvalidTasks(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, service.Config{})
	msgs := []*mq.Message{
		nil,
		mq.NewMessage([]byte("{not json")),
		judgeMessage(t, model.JudgeMessage{ProblemID: 1000, Language: "cpp", Code: "x"}),
		judgeMessage(t, model.JudgeMessage{SubmissionID: 1, ProblemID: 1000, Code: "x"}),
	}
	for i, msg := range msgs {
		if err := f.svc.HandleMessage(context.Background(), msg); err != nil {
			t.Fatalf("message %d: invalid tasks must be dropped, got %v", i, err)
		}
	}
	if len(f.store.saved) != 0 {
		t.Fatalf("nothing may be stored for invalid tasks")
	}
}

func TestHandleMessageUnknownProblemStoresUE(t *testing.T) {
	t.Parallel()
	f := newServiceFixture(t, service.Config{})
	msg := judgeMessage(t, model.JudgeMessage{SubmissionID: 51, ProblemID: 404, Language: "cpp", Code: "x"})
	if err := f.svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	saved := f.store.last()
	if saved.id != 51 || saved.outcome.Status != result.StatusUE || saved.outcome.Error != "problem not found" {
		t.Fatalf("unexpected saved outcome %+v", saved)
	}
}

func TestHandleMessageRequeuesWhenPoolIsFull(t *testing.T) {
	t.Parallel()
	queue := &fakeQueue{}
	blocked := make(chan struct{})
	started := make(chan struct{})
	f := newServiceFixture(t, service.Config{
		Queue:          queue,
		Retry:          service.PoolRetry{Topic: "judge.retry", MaxRetries: 3},
		SlotWait:       20 * time.Millisecond,
		WorkerPoolSize: 1,
	})
	f.runner.test = func(i int, out string) executor.ExecResult {
		if i == 0 {
			select {
			case started <- struct{}{}:
			default:
			}
			<-blocked
		}
		return produce(t, out, []string{"1", "2"}[i], 0)
	}

	busy := f.svc.JudgeAsync(context.Background(), service.JudgeRequest{Problem: f.problem, Language: "cpp", Code: "x", SubmissionID: 60})
	<-started

	msg := judgeMessage(t, model.JudgeMessage{SubmissionID: 61, ProblemID: f.problem.ID, Language: "cpp", Code: "x"})
	if err := f.svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	close(blocked)
	<-busy

	queue.mu.Lock()
	requeued := queue.published["judge.retry"]
	queue.mu.Unlock()
	if len(requeued) != 1 {
		t.Fatalf("expected one requeued message, got %d", len(requeued))
	}
	if got := service.ParsePoolRetryCount(requeued[0].Headers); got != 1 {
		t.Fatalf("expected retry count 1, got %d", got)
	}
}

func TestPoolRetryDeadLetterAndBackoff(t *testing.T) {
	t.Parallel()
	policy := service.PoolRetry{Topic: "retry", DeadLetter: "dead", MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 3 * time.Millisecond}
	if d := policy.Backoff(0); d != time.Millisecond {
		t.Fatalf("unexpected first backoff %v", d)
	}
	if d := policy.Backoff(5); d != 3*time.Millisecond {
		t.Fatalf("backoff must be capped, got %v", d)
	}

	queue := &fakeQueue{}
	msg := mq.NewMessage([]byte("{}"))
	msg.SetHeader("x-pool-retry", "2")
	if err := policy.Requeue(context.Background(), queue, msg); err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	if len(queue.published["dead"]) != 1 || len(queue.published["retry"]) != 0 {
		t.Fatalf("exhausted message must go to dead letter: %v", queue.published)
	}
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	t.Parallel()
	if _, err := service.NewService(service.Config{}); err == nil {
		t.Fatalf("expected error without judger")
	}
}
