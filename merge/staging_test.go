package merge

import (
	"testing"

	"github.com/gazeio/ettbuffer/recordtypes"
)

func gazeSide(x float64) recordtypes.EyeData {
	e := recordtypes.UnavailableEyeData()
	e.GazePoint.Available = true
	e.GazePoint.Validity = recordtypes.Valid
	e.GazePoint.DisplayArea = recordtypes.Vector2{X: x, Y: x}
	return e
}

func opennessSide(v float64) recordtypes.Openness {
	return recordtypes.Openness{Diameter: v, Validity: recordtypes.Valid, Available: true}
}

// TestMergeInterleavedArrivalOrderIndependent covers invariant 4: regardless of which side of a
// given device_ts pair arrives first, the four pairs 1..4 end up complete and in order. Each
// stream's own device_ts still only advances, the same as every other scenario here — a real
// device callback never delivers an older sample after a newer one on the same stream. Unlike
// invariant 5 / scenario S3, no stream here is ever allowed to advance past an outstanding
// unmatched pair on the same side: doing so is exactly the abandonment trigger (§9 "flush on
// arrival of later device_ts on either side"), so advancing G2 or O2 before pair 1 completes
// would legitimately flush pair 1 as a partial rather than demonstrate order independence.
func TestMergeInterleavedArrivalOrderIndependent(t *testing.T) {
	s := New()
	var out []recordtypes.GazeRecord

	out = append(out, s.ArriveGaze(1, 10, gazeSide(1), gazeSide(1))...)
	out = append(out, s.ArriveOpenness(1, 10, opennessSide(1), opennessSide(1))...)
	out = append(out, s.ArriveOpenness(2, 20, opennessSide(2), opennessSide(2))...)
	out = append(out, s.ArriveGaze(2, 20, gazeSide(2), gazeSide(2))...)
	out = append(out, s.ArriveGaze(3, 30, gazeSide(3), gazeSide(3))...)
	out = append(out, s.ArriveOpenness(3, 30, opennessSide(3), opennessSide(3))...)
	out = append(out, s.ArriveOpenness(4, 40, opennessSide(4), opennessSide(4))...)
	out = append(out, s.ArriveGaze(4, 40, gazeSide(4), gazeSide(4))...)

	if len(out) != 4 {
		t.Fatalf("want 4 emitted records, got %d: %+v", len(out), out)
	}
	for i, r := range out {
		wantTS := int64(i + 1)
		if r.DeviceTS != wantTS {
			t.Fatalf("record %d: want device_ts %d, got %d", i, wantTS, r.DeviceTS)
		}
		if !r.Left.GazePoint.Available || !r.Left.Openness.Available {
			t.Fatalf("record %d: left side not fully available: %+v", i, r.Left)
		}
		if !r.Right.GazePoint.Available || !r.Right.Openness.Available {
			t.Fatalf("record %d: right side not fully available: %+v", i, r.Right)
		}
	}
}

// TestMergeScenarioS2 mirrors the literal scenario: G@100, O@100, O@200, G@200 arriving in that
// order yields exactly two fully-available records.
func TestMergeScenarioS2(t *testing.T) {
	s := New()
	var out []recordtypes.GazeRecord

	out = append(out, s.ArriveGaze(100, 1000, gazeSide(1), gazeSide(1))...)
	out = append(out, s.ArriveOpenness(100, 1000, opennessSide(1), opennessSide(1))...)
	out = append(out, s.ArriveOpenness(200, 2000, opennessSide(2), opennessSide(2))...)
	out = append(out, s.ArriveGaze(200, 2000, gazeSide(2), gazeSide(2))...)

	if len(out) != 2 {
		t.Fatalf("want 2 records, got %d", len(out))
	}
	if out[0].DeviceTS != 100 || out[1].DeviceTS != 200 {
		t.Fatalf("got device_ts %d, %d", out[0].DeviceTS, out[1].DeviceTS)
	}
	for i, r := range out {
		if !r.Left.GazePoint.Available || !r.Left.Openness.Available {
			t.Fatalf("record %d not fully available: %+v", i, r)
		}
	}
}

// TestMergeScenarioS3AbandonmentRule: G@100, G@200, O@100 (O@200 never arrives), then G@300.
// Invariant 5 / scenario S3: an older one-sided entry is abandoned as soon as a later device_ts
// arrives on either side, since a stream's device_ts only advances and that entry can never be
// completed. G@200 must not disturb the still-pairable ts=100 entry (O@100 has not arrived yet
// when G@200 lands). G@300 then abandons the still gaze-only ts=200 entry — emitted with
// openness unavailable — before ts=300 itself lands in staging awaiting its own openness side.
func TestMergeScenarioS3AbandonmentRule(t *testing.T) {
	s := New()
	var out []recordtypes.GazeRecord

	out = append(out, s.ArriveGaze(100, 1000, gazeSide(1), gazeSide(1))...)
	out = append(out, s.ArriveGaze(200, 2000, gazeSide(2), gazeSide(2))...)
	out = append(out, s.ArriveOpenness(100, 1000, opennessSide(1), opennessSide(1))...)

	if len(out) != 1 {
		t.Fatalf("want 1 record emitted so far (ts=100), got %d", len(out))
	}
	if out[0].DeviceTS != 100 || !out[0].Left.Openness.Available {
		t.Fatalf("ts=100 record incomplete: %+v", out[0])
	}
	if s.Len() != 1 {
		t.Fatalf("want staging to hold the ts=200 gaze-only entry, len=%d", s.Len())
	}

	flushed := s.ArriveGaze(300, 3000, gazeSide(3), gazeSide(3))
	if len(flushed) != 1 {
		t.Fatalf("want G@300 to abandon the ts=200 gaze-only entry, got %d: %+v", len(flushed), flushed)
	}
	if flushed[0].DeviceTS != 200 || flushed[0].Left.Openness.Available {
		t.Fatalf("want ts=200 flushed with openness unavailable before ts=300 lands, got %+v", flushed[0])
	}
	if s.Len() != 1 {
		t.Fatalf("want ts=300 staged awaiting its own openness, len=%d", s.Len())
	}

	// policy-off (or teardown): staging is flushed as-is, oldest first.
	final := s.Flush()
	if len(final) != 1 {
		t.Fatalf("got %+v", final)
	}
	if final[0].DeviceTS != 300 || final[0].Left.Openness.Available {
		t.Fatalf("want ts=300 flushed with openness unavailable, got %+v", final[0])
	}
	if s.Len() != 0 {
		t.Fatalf("want staging empty after Flush, len=%d", s.Len())
	}
}

func TestMergeFlushOnEmptyStaging(t *testing.T) {
	s := New()
	if got := s.Flush(); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}
