package calibration

import (
	"runtime"
	"testing"
	"time"

	"github.com/gazeio/ettbuffer/device"
	"github.com/gazeio/ettbuffer/internal/diagnostics"
	"github.com/gazeio/ettbuffer/recordtypes"
	"github.com/gazeio/ettbuffer/xerrors"
)

func waitResult(t *testing.T, w *Worker) recordtypes.CalibrationResult {
	t.Helper()
	select {
	case r := <-w.Results():
		return r
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for calibration result")
		return recordtypes.CalibrationResult{}
	}
}

func TestSubmitBeforeEnterIsRejected(t *testing.T) {
	fake := device.NewFake(device.Identity{}, device.Capabilities{})
	w := NewWorker(fake)

	err := w.Submit(recordtypes.CalibrationRequest{Kind: recordtypes.CalibrationCollectData})
	if !xerrors.Is(err, xerrors.KindNotInCalibrationMode) {
		t.Fatalf("want NotInCalibrationMode, got %v", err)
	}
}

// TestScenarioS5 mirrors the literal scenario: Enter -> {Enter, ok}; once CollectData completes
// the state is back at AwaitingPoint (the transient CollectingData state is not sampled here);
// Compute yields a result with calibration points; Exit terminates the worker and the state
// becomes Left.
func TestScenarioS5(t *testing.T) {
	fake := device.NewFake(device.Identity{}, device.Capabilities{})
	w := NewWorker(fake)

	if err := w.Enter(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	enterResult := waitResult(t, w)
	if enterResult.Request.Kind != recordtypes.CalibrationEnter || enterResult.Status != nil {
		t.Fatalf("got %+v", enterResult)
	}

	if err := w.Submit(recordtypes.CalibrationRequest{
		Kind:  recordtypes.CalibrationCollectData,
		Point: recordtypes.CalibrationPoint{X: 0.5, Y: 0.5},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	collectResult := waitResult(t, w)
	if collectResult.Request.Kind != recordtypes.CalibrationCollectData || collectResult.Status != nil {
		t.Fatalf("got %+v", collectResult)
	}
	if w.State() != AwaitingPoint {
		t.Fatalf("want AwaitingPoint after collect completes, got %v", w.State())
	}

	if err := w.Submit(recordtypes.CalibrationRequest{Kind: recordtypes.CalibrationCompute}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	computeResult := waitResult(t, w)
	if computeResult.Request.Kind != recordtypes.CalibrationCompute || computeResult.Status != nil {
		t.Fatalf("got %+v", computeResult)
	}
	if len(computeResult.CalibrationPoints) != 1 {
		t.Fatalf("want 1 calibration point, got %d", len(computeResult.CalibrationPoints))
	}

	if err := w.Submit(recordtypes.CalibrationRequest{Kind: recordtypes.CalibrationExit}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exitResult := waitResult(t, w)
	if exitResult.Request.Kind != recordtypes.CalibrationExit || exitResult.Status != nil {
		t.Fatalf("got %+v", exitResult)
	}

	deadline := time.Now().Add(time.Second)
	for w.State() != Left && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if w.State() != Left {
		t.Fatalf("want Left, got %v", w.State())
	}
}

func TestSubmitAfterExitIsRejected(t *testing.T) {
	fake := device.NewFake(device.Identity{}, device.Capabilities{})
	w := NewWorker(fake)
	if err := w.Enter(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitResult(t, w)

	if err := w.Submit(recordtypes.CalibrationRequest{Kind: recordtypes.CalibrationExit}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitResult(t, w)

	deadline := time.Now().Add(time.Second)
	for w.State() != Left && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	err := w.Submit(recordtypes.CalibrationRequest{Kind: recordtypes.CalibrationCollectData})
	if !xerrors.Is(err, xerrors.KindNotInCalibrationMode) {
		t.Fatalf("want NotInCalibrationMode, got %v", err)
	}
}

func TestForceLeaveDoesNotChangeWorkerState(t *testing.T) {
	fake := device.NewFake(device.Identity{}, device.Capabilities{})
	w := NewWorker(fake)
	if err := w.Enter(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitResult(t, w)

	if err := ForceLeave(fake); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake.CalibrationEntered() {
		t.Fatalf("want device-level calibration mode left")
	}
	if w.State() != AwaitingPoint {
		t.Fatalf("force_leave must not change worker state, got %v", w.State())
	}
}

// TestWorkerGoroutineExitsOnExit guards against the one real leak risk in this package: Enter
// starts a goroutine, and only a well-formed Exit request makes it return. A worker that never
// receives Exit would otherwise pin one goroutine per entered calibration session forever.
func TestWorkerGoroutineExitsOnExit(t *testing.T) {
	runtime.GC()
	baseline := diagnostics.GoroutineCount()

	fake := device.NewFake(device.Identity{}, device.Capabilities{})
	w := NewWorker(fake)
	if err := w.Enter(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitResult(t, w)

	if err := w.Submit(recordtypes.CalibrationRequest{Kind: recordtypes.CalibrationExit}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitResult(t, w)

	deadline := time.Now().Add(time.Second)
	for w.State() != Left && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	runtime.GC()
	time.Sleep(20 * time.Millisecond)
	if got := diagnostics.GoroutineCount(); got > baseline {
		t.Errorf("want worker goroutine gone after Exit, baseline=%d, current=%d", baseline, got)
	}
}
