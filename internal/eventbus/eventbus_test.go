package eventbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ringtrail/internal/catalog"
	"github.com/roach88/ringtrail/internal/ring"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvent() catalog.Event {
	return &catalog.ContractChange{
		ContractID: "contract-1",
		Change: &catalog.UpdateRequest{
			Transaction: "tx-1", Key: "contract-1", Requester: "a", Target: "b",
			Timestamp: 1, ContractLocation: ring.MustLocation(0.5),
		},
	}
}

func TestMemory_RecordsInOrder(t *testing.T) {
	m := NewMemory()
	assert.Nil(t, m.Last())

	first := sampleEvent()
	second := &catalog.ControllerResponse{Response: &catalog.Ok{}}
	require.NoError(t, m.Emit(context.Background(), first))
	require.NoError(t, m.Emit(context.Background(), second))

	assert.Equal(t, []catalog.Event{first, second}, m.Events())
	assert.Equal(t, second, m.Last())

	m.Reset()
	assert.Empty(t, m.Events())
}

func TestFanOut_DeliversToAllAndJoinsErrors(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	errFirst := errors.New("first failed")
	errLast := errors.New("last failed")

	f := FanOut{
		SinkFunc(func(context.Context, catalog.Event) error { return errFirst }),
		a,
		b,
		SinkFunc(func(context.Context, catalog.Event) error { return errLast }),
	}
	err := f.Emit(context.Background(), sampleEvent())

	assert.ErrorIs(t, err, errFirst)
	assert.ErrorIs(t, err, errLast)
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestFanOut_Empty(t *testing.T) {
	assert.NoError(t, FanOut{}.Emit(context.Background(), sampleEvent()))
}

type fakePublisher struct {
	topics   []string
	payloads [][]byte
	qos      []byte
	err      error
	closed   bool
}

func (p *fakePublisher) Publish(_ context.Context, topic string, qos byte, _ bool, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.qos = append(p.qos, qos)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakePublisher) Close() { p.closed = true }

func TestMQTTSink_PublishesWireEncoding(t *testing.T) {
	pub := &fakePublisher{}
	s := NewMQTTSink(pub, "net/node-1/", 1, testLogger())

	ev := sampleEvent()
	require.NoError(t, s.Emit(context.Background(), ev))

	require.Len(t, pub.topics, 1)
	assert.Equal(t, "net/node-1/contract_change/update_request", pub.topics[0])
	assert.Equal(t, byte(1), pub.qos[0])

	decoded, err := catalog.DecodeEvent(pub.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)

	s.Close()
	assert.True(t, pub.closed)
}

func TestMQTTSink_DefaultPrefix(t *testing.T) {
	s := NewMQTTSink(&fakePublisher{}, "", 0, nil)
	ev := &catalog.PeerChange{Change: &catalog.Error{Message: "x"}}
	assert.Equal(t, "ringtrail/events/peer_change/error", s.Topic(ev))
}

func TestMQTTSink_Errors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	s := NewMQTTSink(pub, "p", 0, testLogger())

	err := s.Emit(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "broker gone")

	err = s.Emit(context.Background(), &catalog.ContractChange{ContractID: "c"})
	var unknown *catalog.UnknownVariantError
	assert.ErrorAs(t, err, &unknown)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Emit(ctx, sampleEvent()), context.Canceled)
}

func TestDialMQTT_ValidatesOptions(t *testing.T) {
	_, err := DialMQTT(context.Background(), MQTTOptions{}, testLogger())
	assert.ErrorContains(t, err, "broker url is required")

	_, err = DialMQTT(context.Background(), MQTTOptions{BrokerURL: "tcp://localhost:1883", QoS: 3}, testLogger())
	assert.ErrorContains(t, err, "qos 3 out of range")

	_, err = DialMQTT(context.Background(), MQTTOptions{BrokerURL: "tcp://localhost:1883", PublishTimeout: -time.Second}, testLogger())
	assert.ErrorContains(t, err, "must not be negative")
}

// stuckToken is a paho token that completes only when done is closed.
type stuckToken struct {
	done chan struct{}
	err  error
}

func (t *stuckToken) Wait() bool {
	<-t.done
	return true
}

func (t *stuckToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *stuckToken) Done() <-chan struct{} { return t.done }
func (t *stuckToken) Error() error          { return t.err }

var _ mqtt.Token = (*stuckToken)(nil)

func TestAwaitToken(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		tok := &stuckToken{done: make(chan struct{}), err: errors.New("not authorized")}
		close(tok.done)
		assert.EqualError(t, awaitToken(context.Background(), tok, time.Second), "not authorized")
	})

	t.Run("timeout", func(t *testing.T) {
		tok := &stuckToken{done: make(chan struct{})}
		start := time.Now()
		err := awaitToken(context.Background(), tok, 20*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("cancelled", func(t *testing.T) {
		tok := &stuckToken{done: make(chan struct{})}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, awaitToken(ctx, tok, time.Minute), context.Canceled)
	})
}
