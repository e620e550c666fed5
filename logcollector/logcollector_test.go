package logcollector

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/gazeio/ettbuffer/recordtypes"
)

func TestGetLogWithoutClearIsIdempotent(t *testing.T) {
	c := New()
	c.AddDriverLog(1, "dispatcher", "info", "started")

	first := c.GetLog(false)
	second := c.GetLog(false)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("want 1 entry both times, got %d then %d", len(first), len(second))
	}
}

func TestGetLogWithClearEmptiesBuffer(t *testing.T) {
	c := New()
	c.AddDriverLog(1, "dispatcher", "info", "started")
	c.AddDriverLog(2, "dispatcher", "warn", "retrying")

	got := c.GetLog(true)
	if len(got) != 2 {
		t.Fatalf("want 2 entries, got %d", len(got))
	}
	if c.Len() != 0 {
		t.Fatalf("want buffer cleared, len=%d", c.Len())
	}
}

func TestAddStreamErrorTagsSerialAndStreamKind(t *testing.T) {
	c := New()
	c.AddStreamError(5, "ABC-123", recordtypes.Gaze, "reconnecting")

	got := c.GetLog(false)
	if len(got) != 1 {
		t.Fatalf("want 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.Kind != recordtypes.LogStreamError || e.Serial != "ABC-123" || e.StreamKind != recordtypes.Gaze {
		t.Fatalf("got %+v", e)
	}
}

func TestHookFeedsCollectorFromLogrus(t *testing.T) {
	c := New()
	logger := logrus.New()
	logger.AddHook(NewHook(c, "dispatcher"))
	logger.Out = io.Discard

	logger.WithField("source", "calibration").Warn("awaiting point")

	got := c.GetLog(false)
	if len(got) != 1 {
		t.Fatalf("want 1 entry, got %d", len(got))
	}
	if got[0].Source != "calibration" || got[0].Text != "awaiting point" {
		t.Fatalf("got %+v", got[0])
	}
}

func TestRateForTracksOnlyItsOwnSource(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.AddDriverLog(int64(i), "dispatcher", "info", "tick")
	}
	c.AddDriverLog(0, "calibration", "info", "tick")

	if got := c.RateFor("dispatcher"); got != 5 {
		t.Fatalf("want rate 5, got %v", got)
	}
	if got := c.RateFor("calibration"); got != 1 {
		t.Fatalf("want rate 1, got %v", got)
	}
	if got := c.RateFor("unseen"); got != 0 {
		t.Fatalf("want rate 0 for a source that never logged, got %v", got)
	}
}
