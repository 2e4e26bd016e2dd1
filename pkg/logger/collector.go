package logger

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

// ErrorSink receives flushed batches of aggregated log entries. Satisfied
// by the kafka producer.
type ErrorSink interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// CollectorConfig controls error-log aggregation.
type CollectorConfig struct {
	FlushInterval time.Duration // periodic flush cadence
	MaxEntries    int           // flush early once this many distinct entries accumulate
	Topic         string
	Sink          ErrorSink
}

// LogEntry is one deduplicated log line with occurrence bookkeeping.
type LogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates repeated log lines and ships them to a sink in
// batches. A noisy error that fires thousands of times per flush interval
// becomes one entry with a count.
type LogCollector struct {
	cfg     CollectorConfig
	mu      sync.Mutex
	entries map[uint64]*LogEntry
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLogCollector starts the collector's flush loop.
func NewLogCollector(cfg CollectorConfig) *LogCollector {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &LogCollector{
		cfg:     cfg,
		entries: make(map[uint64]*LogEntry),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

// Add records one occurrence of a log line. Entries are keyed by level and
// message only; field values vary per occurrence and would defeat the
// deduplication, so the first occurrence's fields are kept as a sample.
func (c *LogCollector) Add(level, message string, fields map[string]interface{}) {
	key := entryKey(level, message)
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &LogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	full := len(c.entries) >= c.cfg.MaxEntries
	var batch []LogEntry
	if full {
		batch = c.drainLocked()
	}
	c.mu.Unlock()

	if full {
		c.ship(batch)
	}
}

func (c *LogCollector) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-ctx.Done():
			c.Flush()
			return
		}
	}
}

// Flush ships everything accumulated so far.
func (c *LogCollector) Flush() {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	c.ship(batch)
}

func (c *LogCollector) drainLocked() []LogEntry {
	if len(c.entries) == 0 {
		return nil
	}
	batch := make([]LogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	c.entries = make(map[uint64]*LogEntry)
	sort.Slice(batch, func(i, j int) bool { return batch[i].Count > batch[j].Count })
	return batch
}

func (c *LogCollector) ship(batch []LogEntry) {
	if len(batch) == 0 || c.cfg.Sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cfg.Sink.Publish(ctx, c.cfg.Topic, nil, batch); err != nil {
		fmt.Printf("log collector flush failed: %v\n", err)
	}
}

// Close flushes remaining entries and stops the loop.
func (c *LogCollector) Close() {
	c.cancel()
	<-c.done
}

func entryKey(level, message string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(level))
	h.Write([]byte{0})
	h.Write([]byte(message))
	return h.Sum64()
}
