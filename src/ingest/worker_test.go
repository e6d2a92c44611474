package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setupingest/src/model"
	"setupingest/src/parser"
)

type fakeQueue struct {
	mu       sync.Mutex
	pending  []model.DiscordMessage
	attempts map[string]int
	statuses map[string]string
	findErr  error
}

func newFakeQueue(msgs ...model.DiscordMessage) *fakeQueue {
	return &fakeQueue{pending: msgs, attempts: map[string]int{}, statuses: map[string]string{}}
}

func (q *fakeQueue) FindPending(_ context.Context, limit int) ([]model.DiscordMessage, error) {
	if q.findErr != nil {
		return nil, q.findErr
	}
	if len(q.pending) > limit {
		return q.pending[:limit], nil
	}
	return q.pending, nil
}

func (q *fakeQueue) IncrementAttempts(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts[id]++
	return nil
}

func (q *fakeQueue) MarkStatus(_ context.Context, id, status string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[id] = status
	return nil
}

type fakeProcessor struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (p *fakeProcessor) Process(_ context.Context, msg parser.RawMessage) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, msg.MessageID)
	if p.fail[msg.MessageID] {
		return Outcome{}, errors.New("storage unavailable")
	}
	return Outcome{MessageID: msg.MessageID, Status: StatusParsed}, nil
}

func (p *fakeProcessor) order(ids ...string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	want := make(map[string]bool)
	for _, id := range ids {
		want[id] = true
	}
	var out []string
	for _, id := range p.seen {
		if want[id] {
			out = append(out, id)
		}
	}
	return out
}

func msgIn(channel, id string, attempts int) model.DiscordMessage {
	return model.DiscordMessage{MessageID: id, ChannelID: channel, Content: "x", Attempts: attempts}
}

func TestWorkerRunOnce(t *testing.T) {
	queue := newFakeQueue(
		msgIn("c1", "1", 0),
		msgIn("c2", "2", 0),
		msgIn("c1", "3", 0),
		msgIn("c1", "4", 0),
	)
	proc := &fakeProcessor{fail: map[string]bool{"3": true}}
	w := NewWorker(queue, proc, Config{BatchSize: 10, Workers: 2, MaxAttempts: 5})

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, []string{"1", "3", "4"}, proc.order("1", "3", "4"), "one channel is processed in order")
	assert.Len(t, proc.seen, 4)
	assert.Equal(t, map[string]int{"3": 1}, queue.attempts)
	assert.Empty(t, queue.statuses)
}

func TestWorkerGivesUpAfterMaxAttempts(t *testing.T) {
	queue := newFakeQueue(msgIn("c1", "bad", 4))
	proc := &fakeProcessor{fail: map[string]bool{"bad": true}}
	w := NewWorker(queue, proc, Config{BatchSize: 10, Workers: 1, MaxAttempts: 5})

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ParseStatusFailed, queue.statuses["bad"])
}

func TestWorkerRunOnceQueueError(t *testing.T) {
	queue := newFakeQueue()
	queue.findErr = errors.New("db down")
	w := NewWorker(queue, &fakeProcessor{}, Config{})

	_, err := w.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	queue := newFakeQueue(msgIn("c1", "1", 0))
	proc := &fakeProcessor{}
	w := NewWorker(queue, proc, Config{LoopPeriod: 10 * time.Millisecond, BatchSize: 1, Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		proc.mu.Lock()
		defer proc.mu.Unlock()
		return len(proc.seen) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestByChannel(t *testing.T) {
	groups := byChannel([]model.DiscordMessage{msgIn("a", "1", 0), msgIn("b", "2", 0), msgIn("a", "3", 0)})
	require.Len(t, groups, 2)
	assert.Equal(t, "1", groups[0][0].MessageID)
	assert.Equal(t, "3", groups[0][1].MessageID)
	assert.Equal(t, "2", groups[1][0].MessageID)
}
