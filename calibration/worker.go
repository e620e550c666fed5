// Package calibration implements the Calibration Worker (specification §4.5): a single dedicated
// goroutine owns every blocking calibration call into the vendor device, fed by a request channel
// and drained through a result channel, mirroring the source's single-producer/single-consumer
// queue pair with Go's buffered channels standing in for the wait-free SPSC queues.
package calibration

import (
	"github.com/sirupsen/logrus"

	"github.com/gazeio/ettbuffer/device"
	"github.com/gazeio/ettbuffer/internal/safego"
	"github.com/gazeio/ettbuffer/recordtypes"
	"github.com/gazeio/ettbuffer/xerrors"
)

// State is the worker-side calibration state machine (§4.5).
type State int

const (
	NotEntered State = iota
	AwaitingPoint
	CollectingData
	DiscardingData
	Computing
	GettingData
	ApplyingData
	Left
)

func (s State) String() string {
	switch s {
	case NotEntered:
		return "NotEntered"
	case AwaitingPoint:
		return "AwaitingPoint"
	case CollectingData:
		return "CollectingData"
	case DiscardingData:
		return "DiscardingData"
	case Computing:
		return "Computing"
	case GettingData:
		return "GettingData"
	case ApplyingData:
		return "ApplyingData"
	case Left:
		return "Left"
	default:
		return "Unknown"
	}
}

const requestQueueCapacity = 8

// Worker owns the calibration goroutine for one session. Enter starts it; Exit (or the request
// queue closing) ends it.
type Worker struct {
	tracker device.Tracker

	requests chan recordtypes.CalibrationRequest
	results  chan recordtypes.CalibrationResult
	state    chan State // 1-buffered "mailbox" holding the current state; readers and writers take it out and put one back
	done     chan struct{}
}

// NewWorker creates a Worker bound to tracker. The worker goroutine is not started until Enter is
// called.
func NewWorker(tracker device.Tracker) *Worker {
	w := &Worker{
		tracker:  tracker,
		requests: make(chan recordtypes.CalibrationRequest, requestQueueCapacity),
		results:  make(chan recordtypes.CalibrationResult, requestQueueCapacity),
		state:    make(chan State, 1),
		done:     make(chan struct{}),
	}
	w.state <- NotEntered
	return w
}

func (w *Worker) setState(s State) {
	<-w.state
	w.state <- s
}

// State reports the worker's current state. It waits only while a concurrent state change is
// swapping the mailbox value, never on a calibration call in progress.
func (w *Worker) State() State {
	s := <-w.state
	w.state <- s
	return s
}

// Enter transitions NotEntered -> AwaitingPoint and starts the worker goroutine. Calling Enter a
// second time without an intervening Exit is rejected.
func (w *Worker) Enter(professionalMode bool) error {
	if w.State() != NotEntered {
		return xerrors.NotInCalibrationMode("calibration already entered")
	}
	if err := w.tracker.EnterCalibrationMode(professionalMode); err != nil {
		return xerrors.Device(err, "enter calibration mode")
	}
	w.setState(AwaitingPoint)
	safego.Go("calibration-worker", w.run)
	w.results <- recordtypes.CalibrationResult{
		Request: recordtypes.CalibrationRequest{Kind: recordtypes.CalibrationEnter},
		Status:  nil,
	}
	return nil
}

// Submit enqueues a request for the worker. Rejected with NotInCalibrationMode if the worker
// hasn't entered calibration mode or has already left.
func (w *Worker) Submit(req recordtypes.CalibrationRequest) error {
	switch w.State() {
	case NotEntered, Left:
		return xerrors.NotInCalibrationMode("calibration request outside Enter..Exit")
	}
	w.requests <- req
	return nil
}

// Results returns the channel of completed CalibrationResult values. The caller drains it with a
// non-blocking receive (try-dequeue), matching the source's caller-side SPSC contract.
func (w *Worker) Results() <-chan recordtypes.CalibrationResult {
	return w.results
}

// TryResult performs a non-blocking receive on the result queue.
func (w *Worker) TryResult() (recordtypes.CalibrationResult, bool) {
	select {
	case r := <-w.results:
		return r, true
	default:
		return recordtypes.CalibrationResult{}, false
	}
}

// run is the worker goroutine body: blocking-dequeue on the request channel, one blocking vendor
// call per request, then enqueue the result.
func (w *Worker) run() {
	defer close(w.done)
	for req := range w.requests {
		result := w.handle(req)
		w.results <- result
		if req.Kind == recordtypes.CalibrationExit {
			w.setState(Left)
			return
		}
	}
}

// Join blocks until the worker goroutine has returned, which only happens once it has processed a
// CalibrationExit request. Safe to call more than once or before Enter (an un-started worker's
// goroutine has nothing to join, so Join returns immediately).
func (w *Worker) Join() {
	if w.State() == NotEntered {
		return
	}
	<-w.done
}

func (w *Worker) handle(req recordtypes.CalibrationRequest) recordtypes.CalibrationResult {
	switch req.Kind {
	case recordtypes.CalibrationCollectData:
		w.setState(CollectingData)
		err := w.tracker.CalibrationCollectData(req.Point, req.Eye)
		w.setState(AwaitingPoint)
		return recordtypes.CalibrationResult{Request: req, Status: wrapDeviceErr(err, "collect calibration data")}

	case recordtypes.CalibrationDiscardData:
		w.setState(DiscardingData)
		err := w.tracker.CalibrationDiscardData(req.Point, req.Eye)
		w.setState(AwaitingPoint)
		return recordtypes.CalibrationResult{Request: req, Status: wrapDeviceErr(err, "discard calibration data")}

	case recordtypes.CalibrationCompute:
		w.setState(Computing)
		points, err := w.tracker.CalibrationCompute()
		w.setState(AwaitingPoint)
		return recordtypes.CalibrationResult{Request: req, Status: wrapDeviceErr(err, "compute calibration"), CalibrationPoints: points}

	case recordtypes.CalibrationGetData:
		w.setState(GettingData)
		payload, err := w.tracker.CalibrationGetData()
		w.setState(AwaitingPoint)
		return recordtypes.CalibrationResult{Request: req, Status: wrapDeviceErr(err, "get calibration data"), Payload: payload}

	case recordtypes.CalibrationApplyData:
		w.setState(ApplyingData)
		err := w.tracker.CalibrationApplyData(req.Bytes)
		w.setState(AwaitingPoint)
		return recordtypes.CalibrationResult{Request: req, Status: wrapDeviceErr(err, "apply calibration data")}

	case recordtypes.CalibrationExit:
		err := w.tracker.LeaveCalibrationMode()
		return recordtypes.CalibrationResult{Request: req, Status: wrapDeviceErr(err, "exit calibration mode")}

	default:
		return recordtypes.CalibrationResult{Request: req, Status: xerrors.InvalidOperation("unknown calibration request kind")}
	}
}

func wrapDeviceErr(err error, explanation string) error {
	if err == nil {
		return nil
	}
	return xerrors.Device(err, explanation)
}

// ForceLeave issues the vendor's leave-calibration call directly, bypassing the worker entirely.
// It is intended for recovery after a prior crash and does not change the worker's own state
// machine (§4.5).
func ForceLeave(tracker device.Tracker) error {
	if err := tracker.LeaveCalibrationMode(); err != nil {
		logrus.WithError(err).Warn("force_leave calibration mode")
		return xerrors.Device(err, "force leave calibration mode")
	}
	return nil
}
