// Package logcollector implements the process-wide, append-only log buffer every component
// writes driver and stream-error entries into (specification §4.6). It mirrors the teacher's
// MCPLogBuffer/mcpCustomLogger pair: a circular in-memory store fed by a logging hook, except this
// buffer never evicts on its own — eviction is caller-driven via GetLog's clear flag, matching the
// vendor SDK's own log semantics.
package logcollector

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gazeio/ettbuffer/recordtypes"
)

// Collector is the process-wide log store. It is safe for concurrent use and is normally
// installed once per process as a logrus.Hook via NewHook.
type Collector struct {
	mu      sync.RWMutex
	entries []recordtypes.LogEntry
	rates   *rateTrackerBySource
}

// New creates an empty Collector.
func New() *Collector {
	return &Collector{rates: newRateTrackerBySource()}
}

// AddDriverLog appends a driver-originated log line (level/source free text, no stream tag).
func (c *Collector) AddDriverLog(ts int64, source, level, text string) {
	c.rates.record(source, time.Now())
	c.append(recordtypes.LogEntry{
		Kind:   recordtypes.LogDriver,
		TS:     ts,
		Source: source,
		Level:  level,
		Text:   text,
	})
}

// RateFor reports how many driver log lines source has emitted in the trailing one-second
// window, for noisy-source diagnostics.
func (c *Collector) RateFor(source string) float64 {
	return c.rates.rateFor(source, time.Now())
}

// AddStreamError appends a stream-error entry tagged with the originating device serial and
// stream kind, per the Stream Dispatcher's error-reporting contract (§4.3).
func (c *Collector) AddStreamError(ts int64, serial string, kind recordtypes.StreamKind, text string) {
	c.append(recordtypes.LogEntry{
		Kind:       recordtypes.LogStreamError,
		TS:         ts,
		Serial:     serial,
		StreamKind: kind,
		Text:       text,
	})
}

func (c *Collector) append(e recordtypes.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

// GetLog returns every buffered entry in arrival order. When clear is true the buffer is emptied
// atomically with the read, so no entry is observed twice across repeated polling calls.
func (c *Collector) GetLog(clear bool) []recordtypes.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]recordtypes.LogEntry(nil), c.entries...)
	if clear {
		c.entries = nil
	}
	return out
}

// Len reports the number of buffered entries.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Hook adapts a Collector into a logrus.Hook so every logrus call anywhere in the process (the
// dispatcher, calibration worker, network bus) also lands in the shared driver log, the same way
// the teacher's mcpCustomLogger fans a single log call out to both a ring buffer and a file.
type Hook struct {
	collector *Collector
	source    string
}

// NewHook wires collector to receive every logrus entry tagged with source (e.g. "dispatcher",
// "calibration").
func NewHook(collector *Collector, source string) *Hook {
	return &Hook{collector: collector, source: source}
}

func (h *Hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hook) Fire(entry *logrus.Entry) error {
	source := h.source
	if v, ok := entry.Data["source"].(string); ok && v != "" {
		source = v
	}
	h.collector.AddDriverLog(entry.Time.UnixMicro(), source, entry.Level.String(), entry.Message)
	return nil
}
