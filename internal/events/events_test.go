package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
	"github.com/alfredjeanlab/spamwatch/internal/store"
	"github.com/nats-io/nats.go"
)

func TestNoopPublisher_Publish(t *testing.T) {
	pub := &NoopPublisher{}
	err := pub.Publish(context.Background(), TopicStateChanged, StateChanged{})
	if err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
}

func TestNoopPublisher_ImplementsPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = Multi(nil)
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestMetricTopic(t *testing.T) {
	for kind, want := range map[protocol.MetricKind]string{
		protocol.Summary:            "spamwatch.metric.summary",
		protocol.IncSuccessfulTx:    "spamwatch.metric.inc_successful_tx",
		protocol.IncMilestoneBranch: "spamwatch.metric.inc_milestone_branch",
	} {
		if got := MetricTopic(kind); got != want {
			t.Errorf("MetricTopic(%v) = %q, want %q", kind, got, want)
		}
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicTxObserved, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := TxObserved{Hash: "0xabc", Count: 2}
	if err := pub.Publish(context.Background(), TopicTxObserved, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	pub.Flush()

	select {
	case msg := <-ch:
		var got TxObserved
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Hash != "0xabc" || got.Count != 2 {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	err = pub.Publish(context.Background(), TopicStateChanged, StateChanged{})
	if err == nil {
		t.Error("expected error publishing after close")
	}
}

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
	err    error
	closed bool
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return r.err
}

func TestMulti_AttemptsEveryPublisher(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingPublisher{err: boom}
	b := &recordingPublisher{}
	m := Multi{a, b}

	err := m.Publish(context.Background(), TopicStateChanged, StateChanged{Running: true})
	if !errors.Is(err, boom) {
		t.Errorf("Publish error = %v, want boom", err)
	}
	if len(a.topics) != 1 || len(b.topics) != 1 {
		t.Errorf("publishers saw %d/%d events, want 1/1", len(a.topics), len(b.topics))
	}

	if err := m.Close(); !errors.Is(err, boom) {
		t.Errorf("Close error = %v, want boom", err)
	}
	if !a.closed || !b.closed {
		t.Error("Close skipped a publisher")
	}
}

func TestRelay_ForwardsThenPublishes(t *testing.T) {
	s := store.New()
	pub := &recordingPublisher{}
	r := NewRelay(s, pub, nil)
	ts := time.Date(2018, 3, 1, 12, 0, 0, 0, time.UTC)

	r.OnStatus(model.Connected)
	r.OnEnvelope(protocol.Envelope{Kind: protocol.MessageState, Payload: protocol.State{Running: true}, Timestamp: ts})
	r.OnEnvelope(protocol.Envelope{
		Kind:      protocol.MessageMetric,
		Timestamp: ts,
		Payload:   &protocol.Metric{Kind: protocol.Summary, Summary: &protocol.MetricSummary{TPS: 12.3}},
	})
	r.OnEnvelope(protocol.Envelope{
		Kind:      protocol.MessageMetric,
		Timestamp: ts,
		Payload:   &protocol.Metric{Kind: protocol.IncSuccessfulTx, Tx: &protocol.Tx{Hash: "abc", Count: 1}},
	})
	r.OnEnvelope(protocol.Envelope{Kind: protocol.MessageStart})

	if !s.Running() || s.ConnStatus() != model.Connected {
		t.Errorf("store not updated: running=%v conn=%v", s.Running(), s.ConnStatus())
	}
	if sum, ok := s.LastMetric(); !ok || sum.TPS != 12.3 {
		t.Errorf("LastMetric = %+v, %v", sum, ok)
	}

	want := []string{
		TopicConnectionChanged,
		TopicStateChanged,
		"spamwatch.metric.summary",
		"spamwatch.metric.inc_successful_tx",
		TopicTxObserved,
	}
	if len(pub.topics) != len(want) {
		t.Fatalf("topics = %v, want %v", pub.topics, want)
	}
	for i := range want {
		if pub.topics[i] != want[i] {
			t.Errorf("topic[%d] = %q, want %q", i, pub.topics[i], want[i])
		}
	}
	if tx, ok := pub.events[4].(TxObserved); !ok || tx.Hash != "abc" || !tx.Timestamp.Equal(ts) {
		t.Errorf("tx event = %#v", pub.events[4])
	}
}

func TestRelay_PublishFailureDoesNotBlockStore(t *testing.T) {
	s := store.New()
	r := NewRelay(s, &recordingPublisher{err: errors.New("bus down")}, nil)

	r.OnEnvelope(protocol.Envelope{Kind: protocol.MessageState, Payload: protocol.State{Running: true}})
	if !s.Running() {
		t.Error("store missed the envelope because publishing failed")
	}
}

func TestRelay_OverNATS(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()
	sub, err := NewNATSSubscriber(url)
	if err != nil {
		t.Fatalf("creating subscriber: %v", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(TopicMetricAll)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer cancel()

	r := NewRelay(store.New(), pub, nil)
	r.OnEnvelope(protocol.Envelope{
		Kind:    protocol.MessageMetric,
		Payload: &protocol.Metric{Kind: protocol.Summary, Summary: &protocol.MetricSummary{TPS: 45.6, ErrorRate: 0.2}},
	})
	pub.Flush()

	select {
	case msg := <-ch:
		if msg.Topic != "spamwatch.metric.summary" {
			t.Errorf("topic = %q", msg.Topic)
		}
		var got MetricObserved
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Kind != protocol.Summary || got.Summary == nil || got.Summary.TPS != 45.6 {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed metric")
	}
}
