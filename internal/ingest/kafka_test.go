package ingest

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willwe-dev/activity"
	"github.com/willwe-dev/activity/internal/metrics"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestConsumer_AppliesAndCommitsEverything(t *testing.T) {
	s := newTestStore(t)
	m := metrics.Nop()
	reader := &fakeReader{msgs: []kafka.Message{
		{Offset: 0, Value: []byte(`{"event":"Mint","transactionHash":"0x1","logIndex":0,"blockTimestamp":1700000000,"args":{"nodeId":"4","amount":"10"}}`)},
		{Offset: 1, Value: []byte(`{oops`)},
		{Offset: 2, Value: []byte(`{"event":"Mint","transactionHash":"0x1","logIndex":0,"blockTimestamp":1700000000,"args":{"nodeId":"4","amount":"10"}}`)},
		{Offset: 3, Value: []byte(`{"event":"Burn","transactionHash":"0x2","logIndex":0,"args":{"nodeId":"4"}}`)},
		{Offset: 4, Value: []byte(`{"event":"Signaled","transactionHash":"0x3","logIndex":0,"blockTimestamp":1700000100,"args":{"nodeId":"4","sender":"0xS"}}`)},
	}}

	c := NewConsumer(reader, NewDispatcher(s, zerolog.Nop(), m), zerolog.Nop(), m)
	require.NoError(t, c.Run(context.Background()))
	require.NoError(t, c.Close())

	assert.Equal(t, []int64{0, 1, 2, 3, 4}, reader.committed)
	assert.True(t, reader.closed)

	n, err := s.Node(context.Background(), "4")
	require.NoError(t, err)
	assert.Equal(t, "10", n.TotalSupply)

	acts, err := s.ListActivities(context.Background(), activity.NodeSubject("4"), 10)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "Signaled", acts[0].EventType)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestErrors.WithLabelValues("decode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestErrors.WithLabelValues("handle")))
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &blockingReader{}
	c := NewConsumer(reader, NewDispatcher(newTestStore(t), zerolog.Nop(), nil), zerolog.Nop(), nil)
	assert.NoError(t, c.Run(ctx))
}

type blockingReader struct{ fakeReader }

func (r *blockingReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}
