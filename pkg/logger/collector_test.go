package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	batches [][]LogEntry
}

func (s *captureSink) Publish(_ context.Context, _ string, _ []byte, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, value.([]LogEntry))
	return nil
}

func (s *captureSink) all() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LogEntry
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func TestCollectorDeduplicates(t *testing.T) {
	sink := &captureSink{}
	c := NewLogCollector(CollectorConfig{FlushInterval: time.Hour, Topic: "errs", Sink: sink})
	defer c.Close()

	for i := 0; i < 5; i++ {
		c.Add("error", "publish failed", map[string]interface{}{"attempt": i})
	}
	c.Add("error", "storage down", nil)
	c.Flush()

	entries := sink.all()
	require.Len(t, entries, 2)
	// Sorted by count, noisiest first.
	assert.Equal(t, "publish failed", entries[0].Message)
	assert.Equal(t, 5, entries[0].Count)
	assert.Equal(t, 1, entries[1].Count)
	assert.False(t, entries[0].LastSeen.Before(entries[0].FirstSeen))
}

func TestCollectorFlushesOnMaxEntries(t *testing.T) {
	sink := &captureSink{}
	c := NewLogCollector(CollectorConfig{FlushInterval: time.Hour, MaxEntries: 2, Topic: "errs", Sink: sink})
	defer c.Close()

	c.Add("error", "first", nil)
	c.Add("error", "second", nil)

	assert.Len(t, sink.all(), 2)
}

func TestCollectorCloseFlushes(t *testing.T) {
	sink := &captureSink{}
	c := NewLogCollector(CollectorConfig{FlushInterval: time.Hour, Topic: "errs", Sink: sink})

	c.Add("error", "pending", nil)
	c.Close()

	entries := sink.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "pending", entries[0].Message)
}
