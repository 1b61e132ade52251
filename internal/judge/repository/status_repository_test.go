package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"hsoj/internal/common/cache"
	"hsoj/internal/common/mq"
	"hsoj/internal/judge/model"
	"hsoj/internal/judge/repository"
	"hsoj/internal/judge/result"
	appErr "hsoj/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeStatusPublisher struct {
	called int
	status model.JudgeStatus
	err    error
}

func (f *fakeStatusPublisher) PublishFinalStatus(ctx context.Context, status model.JudgeStatus) error {
	f.called++
	f.status = status
	return f.err
}

func newStatusRepo(t *testing.T, pub repository.StatusEventPublisher) (*repository.StatusRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return repository.NewStatusRepository(rc, time.Hour, pub), mr
}

func TestStatusRepositoryRoundTrip(t *testing.T) {
	repo, mr := newStatusRepo(t, nil)
	ctx := context.Background()
	if err := repo.Save(ctx, model.PendingStatus(12, 3)); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !mr.Exists("judge:status:12") {
		t.Fatalf("expected status key to be written")
	}
	if ttl := mr.TTL("judge:status:12"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}
	got, err := repo.Get(ctx, 12)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != result.StatusPending || got.Total != 3 || got.Finished() {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestStatusRepositoryGetMissing(t *testing.T) {
	repo, _ := newStatusRepo(t, nil)
	if _, err := repo.Get(context.Background(), 99); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestStatusRepositoryPublishesOnlyFinalStatus(t *testing.T) {
	pub := &fakeStatusPublisher{}
	repo, _ := newStatusRepo(t, pub)
	ctx := context.Background()

	if err := repo.Save(ctx, model.PendingStatus(5, 2)); err != nil {
		t.Fatalf("save pending failed: %v", err)
	}
	if pub.called != 0 {
		t.Fatalf("pending status must not be published")
	}
	final := model.FinalStatus(5, result.Completed([]result.JudgeResult{{Status: result.StatusAC}, {Status: result.StatusTLE}}))
	if err := repo.Save(ctx, final); err != nil {
		t.Fatalf("save final failed: %v", err)
	}
	if pub.called != 1 || pub.status.Status != result.StatusTLE || pub.status.Score != 50 {
		t.Fatalf("unexpected publish: called=%d status=%+v", pub.called, pub.status)
	}
}

func TestStatusRepositoryIgnoresPublishFailure(t *testing.T) {
	pub := &fakeStatusPublisher{err: errors.New("broker down")}
	repo, _ := newStatusRepo(t, pub)
	final := model.FinalStatus(6, result.CompileFailed("compile error: x"))
	if err := repo.Save(context.Background(), final); err != nil {
		t.Fatalf("publish failure must not fail save: %v", err)
	}
	if pub.called != 1 {
		t.Fatalf("expected one publish attempt, got %d", pub.called)
	}
}

type fakeProducer struct {
	topic    string
	messages []*mq.Message
	err      error
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	f.topic = topic
	f.messages = append(f.messages, message)
	return f.err
}

func TestMQStatusEventPublisher(t *testing.T) {
	t.Parallel()
	producer := &fakeProducer{}
	pub := repository.NewMQStatusEventPublisher(producer, "judge.status.final")
	status := model.FinalStatus(77, result.Completed(nil))
	if err := pub.PublishFinalStatus(context.Background(), status); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if producer.topic != "judge.status.final" || len(producer.messages) != 1 {
		t.Fatalf("unexpected publish: topic=%s count=%d", producer.topic, len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.ID != "77" {
		t.Fatalf("expected message id 77, got %s", msg.ID)
	}
	var event model.StatusEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		t.Fatalf("decode event failed: %v", err)
	}
	if event.Type != model.StatusEventFinal || event.Status.SubmissionID != 77 || event.Status.Score != 100 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestMQStatusEventPublisherErrors(t *testing.T) {
	t.Parallel()
	status := model.FinalStatus(1, result.Completed(nil))
	if err := repository.NewMQStatusEventPublisher(nil, "t").PublishFinalStatus(context.Background(), status); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable without queue, got %v", err)
	}
	if err := repository.NewMQStatusEventPublisher(&fakeProducer{}, "").PublishFinalStatus(context.Background(), status); !appErr.Is(err, appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams without topic, got %v", err)
	}
	failing := &fakeProducer{err: errors.New("no leader")}
	if err := repository.NewMQStatusEventPublisher(failing, "t").PublishFinalStatus(context.Background(), status); !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable on publish error, got %v", err)
	}
}
