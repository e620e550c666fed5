package dispatch

import (
	"testing"

	"github.com/gazeio/ettbuffer/device"
	"github.com/gazeio/ettbuffer/logcollector"
	"github.com/gazeio/ettbuffer/recordtypes"
	"github.com/gazeio/ettbuffer/xerrors"
)

func newTestDispatcher(caps device.Capabilities) (*Dispatcher, *device.Fake) {
	fake := device.NewFake(device.Identity{Serial: "T1"}, caps)
	d := New(fake, logcollector.New(), "T1")
	return d, fake
}

func TestStartStopGazeIsIdempotent(t *testing.T) {
	d, _ := newTestDispatcher(device.Capabilities{})

	if err := d.StartGaze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.StartGaze(); err != nil {
		t.Fatalf("second start must be idempotent: %v", err)
	}
	if err := d.StopGaze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.StopGaze(); err != nil {
		t.Fatalf("second stop must be idempotent: %v", err)
	}
}

func TestMergeOpennessRequiresCapability(t *testing.T) {
	d, _ := newTestDispatcher(device.Capabilities{EyeOpenness: false})
	err := d.SetMergeOpenness(true)
	if !xerrors.Is(err, xerrors.KindCapabilityUnavailable) {
		t.Fatalf("want CapabilityUnavailable, got %v", err)
	}
}

func TestStartGazeUnderMergePolicyAlsoStartsOpenness(t *testing.T) {
	d, fake := newTestDispatcher(device.Capabilities{EyeOpenness: true})
	if err := d.SetMergeOpenness(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.StartGaze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.recordingOpenness {
		t.Fatalf("want openness auto-started under merge policy")
	}

	// and stopping either stops both
	if err := d.StopEyeOpenness(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.recordingGaze {
		t.Fatalf("want gaze auto-stopped under merge policy")
	}
	_ = fake
}

func TestHandleGazeWithoutMergeAppendsDirectly(t *testing.T) {
	d, fake := newTestDispatcher(device.Capabilities{})
	if err := d.StartGaze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fake.InjectGaze(recordtypes.GazeRecord{DeviceTS: 1000, SystemTS: 1_000_000})

	if d.GazeBuffer().Len() != 1 {
		t.Fatalf("want 1 buffered record, got %d", d.GazeBuffer().Len())
	}
}

func TestHandleGazeAndOpennessUnderMergeRouteThroughStaging(t *testing.T) {
	d, fake := newTestDispatcher(device.Capabilities{EyeOpenness: true})
	if err := d.SetMergeOpenness(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.StartGaze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fake.InjectGaze(recordtypes.GazeRecord{DeviceTS: 100, SystemTS: 1000})
	if d.GazeBuffer().Len() != 0 {
		t.Fatalf("want staged, not yet appended, len=%d", d.GazeBuffer().Len())
	}

	fake.InjectOpenness(100, 1000, recordtypes.Openness{Available: true, Validity: recordtypes.Valid}, recordtypes.Openness{Available: true, Validity: recordtypes.Valid})
	if d.GazeBuffer().Len() != 1 {
		t.Fatalf("want flushed to gaze buffer, len=%d", d.GazeBuffer().Len())
	}
}

func TestMirrorHookFiresOnAppend(t *testing.T) {
	d, fake := newTestDispatcher(device.Capabilities{})
	var mirrored []recordtypes.GazeRecord
	d.OnGazeAppend(func(r recordtypes.GazeRecord) { mirrored = append(mirrored, r) })

	if err := d.StartGaze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fake.InjectGaze(recordtypes.GazeRecord{DeviceTS: 1, SystemTS: 1})

	if len(mirrored) != 1 {
		t.Fatalf("want 1 mirrored record, got %d", len(mirrored))
	}
}

func TestStopAllClearsBuffersAndIsSafeWhenNothingStarted(t *testing.T) {
	d, fake := newTestDispatcher(device.Capabilities{})
	if err := d.StartGaze(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fake.InjectGaze(recordtypes.GazeRecord{DeviceTS: 1, SystemTS: 1})

	d.StopAll()

	if d.GazeBuffer().Len() != 0 {
		t.Fatalf("want gaze buffer cleared, len=%d", d.GazeBuffer().Len())
	}

	// calling again on an already-stopped dispatcher must not panic or error
	d.StopAll()
}
