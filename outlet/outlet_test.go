package outlet

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/gazeio/ettbuffer/recordtypes"
	"github.com/gazeio/ettbuffer/transport/wsbus"
)

func TestOpenGazeRejectsSecondOpenForSameKind(t *testing.T) {
	bus := wsbus.New("ws://127.0.0.1:0")
	m := NewManager(bus, Identity{Serial: "T1"})

	if _, err := m.OpenGaze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.OpenGaze(); err == nil {
		t.Fatal("want error opening a second Gaze outlet")
	}
}

func TestEncodeTimeSyncScenarioS4(t *testing.T) {
	s := recordtypes.TimeSync{SystemRequestTS: 1_000_000, DeviceTS: 2000, SystemResponseTS: 1_000_050}
	buf := EncodeTimeSync(s)
	if len(buf) != 24 {
		t.Fatalf("want 24 bytes, got %d", len(buf))
	}
	want := []int64{1_000_000, 2000, 1_000_050}
	for i, w := range want {
		got := int64(binary.BigEndian.Uint64(buf[i*8:]))
		if got != w {
			t.Fatalf("channel %d: want %d, got %d", i, w, got)
		}
	}
	if ts := recordtypes.MicrosToSeconds(s.SystemRequestTS); ts != 1.0 {
		t.Fatalf("want timestamp 1.0s, got %v", ts)
	}
}

func TestEncodeGazeChannelOrderAndFlags(t *testing.T) {
	left := recordtypes.UnavailableEyeData()
	left.GazePoint.Available = true
	left.GazePoint.Validity = recordtypes.Valid
	left.GazePoint.DisplayArea = recordtypes.Vector2{X: 0.25, Y: 0.75}

	right := recordtypes.UnavailableEyeData()

	buf := EncodeGaze(recordtypes.GazeRecord{Left: left, Right: right})
	if len(buf) != 42*4 {
		t.Fatalf("want 168 bytes, got %d", len(buf))
	}

	x := math.Float32frombits(binary.BigEndian.Uint32(buf[0:4]))
	y := math.Float32frombits(binary.BigEndian.Uint32(buf[4:8]))
	if x != 0.25 || y != 0.75 {
		t.Fatalf("want display area {0.25,0.75}, got {%v,%v}", x, y)
	}
	availableFlag := math.Float32frombits(binary.BigEndian.Uint32(buf[6*4 : 7*4]))
	if availableFlag != 1.0 {
		t.Fatalf("want available flag 1.0, got %v", availableFlag)
	}

	// right eye pupil diameter is NaN (unavailable)
	rightPupilOff := 21*4 + 7*4
	rightPupil := math.Float32frombits(binary.BigEndian.Uint32(buf[rightPupilOff : rightPupilOff+4]))
	if !math.IsNaN(float64(rightPupil)) {
		t.Fatalf("want NaN for unavailable pupil diameter, got %v", rightPupil)
	}
}

func TestOpenEyeImagePublishesCompressedPayload(t *testing.T) {
	bus := wsbus.New("ws://127.0.0.1:0")
	m := NewManager(bus, Identity{Serial: "T1"})
	publish, err := m.OpenEyeImage(true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// smoke test: publishing must not panic even with no subscribers attached yet.
	publish(recordtypes.EyeImage{SystemTS: 1_000_000, Payload: []byte("frame-bytes")})
	time.Sleep(time.Millisecond)
}

func TestClosePositioningReleasesSlotForReopen(t *testing.T) {
	bus := wsbus.New("ws://127.0.0.1:0")
	m := NewManager(bus, Identity{Serial: "T1"})
	if _, err := m.OpenPositioning(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Close(recordtypes.PositioningStream); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.OpenPositioning(); err != nil {
		t.Fatalf("want reopen to succeed after close, got %v", err)
	}
}
