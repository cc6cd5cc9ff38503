package logsource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/warden/internal/model"
)

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "m" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "decisions" }
func (c *fakeClaim) Partition() int32                         { return 3 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func TestClaimHandlerForwardsAndMarks(t *testing.T) {
	out := make(chan model.IngestEnvelope, 10)
	h := &claimHandler{out: out}
	session := &fakeSession{ctx: context.Background()}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}

	claim.messages <- &sarama.ConsumerMessage{Offset: 10, Value: []byte(`{"id":"k1"}`)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 11}
	claim.messages <- &sarama.ConsumerMessage{Offset: 12, Value: []byte("{\n\"id\":\"k2\"\n}")}
	close(claim.messages)

	require.NoError(t, h.ConsumeClaim(session, claim))
	close(out)

	var got []model.IngestEnvelope
	for env := range out {
		got = append(got, env)
	}
	require.Len(t, got, 2)
	assert.Equal(t, `{"id":"k1"}`, got[0].Line)
	assert.Equal(t, KafkaSourceName, got[0].Source)
	assert.Equal(t, "decisions/3", got[0].Stream)
	assert.Equal(t, []int64{10, 11, 12}, session.marked)
}

func TestClaimHandlerStopsOnSessionEnd(t *testing.T) {
	out := make(chan model.IngestEnvelope) // never read
	h := &claimHandler{out: out}
	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{ctx: ctx}
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: []byte(`{}`)}

	done := make(chan error, 1)
	go func() { done <- h.ConsumeClaim(session, claim) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ConsumeClaim did not return after session end")
	}
	assert.Empty(t, session.marked, "undelivered message must not be marked")
}

// fakeGroup blocks in Consume until closed.
type fakeGroup struct {
	errs   chan error
	closed chan struct{}
	once   sync.Once
	calls  int
	mu     sync.Mutex
}

func newFakeGroup() *fakeGroup {
	return &fakeGroup{errs: make(chan error), closed: make(chan struct{})}
}

func (g *fakeGroup) Consume(ctx context.Context, _ []string, _ sarama.ConsumerGroupHandler) error {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	select {
	case <-g.closed:
		return sarama.ErrClosedConsumerGroup
	case <-ctx.Done():
		return nil
	}
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	g.once.Do(func() {
		close(g.closed)
		close(g.errs)
	})
	return nil
}

func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

func TestKafkaSourceStopClosesLines(t *testing.T) {
	group := newFakeGroup()
	src := newKafkaSource(context.Background(), group, "decisions", 4)
	assert.Equal(t, KafkaSourceName, src.Name())

	src.Stop()
	src.Stop()

	select {
	case _, ok := <-src.Lines():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Lines not closed after Stop")
	}
}

func TestNewKafkaSourceValidates(t *testing.T) {
	_, err := NewKafkaSource(context.Background(), KafkaConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaSource(context.Background(), KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestNewSaramaConfig(t *testing.T) {
	cfg, err := NewSaramaConfig("")
	require.NoError(t, err)
	assert.Equal(t, sarama.OffsetOldest, cfg.Consumer.Offsets.Initial)
	assert.True(t, cfg.Consumer.Return.Errors)
	require.NoError(t, cfg.Validate())

	_, err = NewSaramaConfig("not-a-version")
	assert.Error(t, err)
}
