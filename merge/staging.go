// Package merge implements the gaze/eye-openness join described in specification §4.2: two
// independently arriving device callbacks are paired by device timestamp into a single
// GazeRecord before it reaches the Gaze Buffer, preserving device-timestamp order even when one
// side arrives out of order or never arrives at all.
package merge

import (
	"github.com/gazeio/ettbuffer/recordtypes"
)

// side identifies which device callback populated (or is arriving to populate) an entry.
type side int

const (
	sideGaze side = iota
	sideOpenness
)

type entry struct {
	deviceTS       int64
	record         recordtypes.GazeRecord
	gazeFilled     bool
	opennessFilled bool
}

func (e *entry) fill(s side) {
	if s == sideGaze {
		e.gazeFilled = true
	} else {
		e.opennessFilled = true
	}
}

func (e *entry) complete() bool {
	return e.gazeFilled && e.opennessFilled
}

// Staging holds the arrival-ordered deque of partially-built GazeRecords. It is not safe for
// concurrent use; the Stream Dispatcher serializes access to it behind its own lock, the way the
// merge staging lock is always acquired before the gaze buffer's writer lock and never the
// reverse (specification §5).
type Staging struct {
	queue []entry
}

// New creates an empty Staging area.
func New() *Staging {
	return &Staging{}
}

// Len reports how many partially-built records are currently staged.
func (s *Staging) Len() int {
	return len(s.queue)
}

// ArriveGaze processes an arriving gaze-side sample and returns every GazeRecord the arrival
// causes to flush, in walk order. left/right carry only the gaze_point/pupil/gaze_origin
// sub-fields; Openness is filled in separately by ArriveOpenness.
func (s *Staging) ArriveGaze(deviceTS, systemTS int64, left, right recordtypes.EyeData) []recordtypes.GazeRecord {
	return s.arrive(deviceTS, sideGaze, func(e *entry) {
		e.record.DeviceTS = deviceTS
		e.record.SystemTS = systemTS
		e.record.Left.GazePoint = left.GazePoint
		e.record.Left.Pupil = left.Pupil
		e.record.Left.GazeOrigin = left.GazeOrigin
		e.record.Right.GazePoint = right.GazePoint
		e.record.Right.Pupil = right.Pupil
		e.record.Right.GazeOrigin = right.GazeOrigin
	})
}

// ArriveOpenness processes an arriving eye-openness-side sample and returns every GazeRecord the
// arrival causes to flush, in walk order.
func (s *Staging) ArriveOpenness(deviceTS, systemTS int64, left, right recordtypes.Openness) []recordtypes.GazeRecord {
	return s.arrive(deviceTS, sideOpenness, func(e *entry) {
		e.record.DeviceTS = deviceTS
		e.record.SystemTS = systemTS
		e.record.Left.Openness = left
		e.record.Right.Openness = right
	})
}

// arrive implements the walk/flush/emit algorithm of specification §4.2. fill populates e.record
// with the arriving record's data; arrivingSide is the side that produced it.
//
// An older entry is abandoned as soon as any later device_ts arrives, on either side: a stream's
// device_ts only advances, so once a later sample has been seen on either side that entry's own
// device_ts can never be completed and it is flushed as a one-sided partial (§9: the distilled
// spec adopts the "flush on arrival of later device_ts on either side" reading). The walk keeps
// going past an abandoned entry looking for a match further back, instead of stopping at it.
func (s *Staging) arrive(deviceTS int64, arrivingSide side, fill func(*entry)) []recordtypes.GazeRecord {
	var emitted []recordtypes.GazeRecord
	kept := make([]entry, 0, len(s.queue)+1)
	matched := false

	for _, e := range s.queue {
		switch {
		case matched:
			kept = append(kept, e)
		case e.deviceTS == deviceTS:
			fill(&e)
			e.fill(arrivingSide)
			matched = true
			if e.complete() {
				emitted = append(emitted, e.record)
			} else {
				kept = append(kept, e)
			}
		case e.deviceTS < deviceTS:
			emitted = append(emitted, e.record)
		default:
			kept = append(kept, e)
		}
	}

	if !matched {
		var e entry
		e.deviceTS = deviceTS
		e.record.Left = recordtypes.UnavailableEyeData()
		e.record.Right = recordtypes.UnavailableEyeData()
		fill(&e)
		e.fill(arrivingSide)
		kept = append(kept, e)
	}

	s.queue = kept
	return emitted
}

// Flush empties staging unconditionally, returning every partially-built record in arrival
// order. Used when the merge policy is turned off while staging is non-empty (§4.2).
func (s *Staging) Flush() []recordtypes.GazeRecord {
	out := make([]recordtypes.GazeRecord, 0, len(s.queue))
	for _, e := range s.queue {
		out = append(out, e.record)
	}
	s.queue = nil
	return out
}
