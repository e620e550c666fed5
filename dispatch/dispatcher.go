// Package dispatch implements the Stream Dispatcher (specification §4.2): it owns the
// subscription lifecycle to the vendor device, routes each arriving record into its buffer, and
// for gaze/eye-openness, optionally routes through the Merge Staging before the gaze buffer ever
// sees the record.
//
// The broadcast-to-registered-consumers shape here is grounded on the teacher's LogBroker:
// RegisterConsumer/notifyConsumers becomes a single registered Buffer-writer per stream. The
// subscription callbacks run directly on the calling (vendor) goroutine; they do not recover
// from a panic.
package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/gazeio/ettbuffer/buffer"
	"github.com/gazeio/ettbuffer/device"
	"github.com/gazeio/ettbuffer/logcollector"
	"github.com/gazeio/ettbuffer/merge"
	"github.com/gazeio/ettbuffer/recordtypes"
	"github.com/gazeio/ettbuffer/xerrors"
)

func gazeKey(r recordtypes.GazeRecord) int64     { return r.SystemTS }
func imageKey(r recordtypes.EyeImage) int64      { return r.SystemTS }
func extSignalKey(r recordtypes.ExtSignal) int64 { return r.SystemTS }
func timeSyncKey(r recordtypes.TimeSync) int64   { return r.SystemRequestTS }
func notifyKey(r recordtypes.Notification) int64 { return r.SystemTS }

// Dispatcher owns every per-stream Buffer for one session and the subscription state machine
// described in §4.2's cross-stream coupling under the merge policy.
type Dispatcher struct {
	mu sync.Mutex

	tracker device.Tracker
	logs    *logcollector.Collector
	serial  string

	gaze         *buffer.Buffer[recordtypes.GazeRecord]
	eyeImage     *buffer.Buffer[recordtypes.EyeImage]
	extSignal    *buffer.Buffer[recordtypes.ExtSignal]
	timeSync     *buffer.Buffer[recordtypes.TimeSync]
	positioning  *buffer.Buffer[recordtypes.Positioning]
	notification *buffer.Buffer[recordtypes.Notification]

	staging *merge.Staging

	recordingGaze     bool
	recordingOpenness bool
	mergeFlag         bool

	// onGazeAppend fires after every append to gaze, for the Outlet Manager to mirror into its
	// published channel (§4.3). Stream-specific hooks follow the same shape.
	onGazeAppend         func(recordtypes.GazeRecord)
	onEyeImageAppend     func(recordtypes.EyeImage)
	onExtSignalAppend    func(recordtypes.ExtSignal)
	onTimeSyncAppend     func(recordtypes.TimeSync)
	onPositioningAppend  func(recordtypes.Positioning)
	onNotificationAppend func(recordtypes.Notification)
}

// New creates a Dispatcher for the given tracker. serial tags every stream-error log line it
// reports to the shared Collector.
func New(tracker device.Tracker, logs *logcollector.Collector, serial string) *Dispatcher {
	return &Dispatcher{
		tracker:      tracker,
		logs:         logs,
		serial:       serial,
		gaze:         buffer.New(gazeKey, true),
		eyeImage:     buffer.New(imageKey, true),
		extSignal:    buffer.New(extSignalKey, true),
		timeSync:     buffer.New(timeSyncKey, true),
		positioning:  buffer.New(nil, false),
		notification: buffer.New(notifyKey, true),
		staging:      merge.New(),
	}
}

func (d *Dispatcher) GazeBuffer() *buffer.Buffer[recordtypes.GazeRecord]         { return d.gaze }
func (d *Dispatcher) EyeImageBuffer() *buffer.Buffer[recordtypes.EyeImage]       { return d.eyeImage }
func (d *Dispatcher) ExtSignalBuffer() *buffer.Buffer[recordtypes.ExtSignal]     { return d.extSignal }
func (d *Dispatcher) TimeSyncBuffer() *buffer.Buffer[recordtypes.TimeSync]       { return d.timeSync }
func (d *Dispatcher) PositioningBuffer() *buffer.Buffer[recordtypes.Positioning] { return d.positioning }
func (d *Dispatcher) NotificationBuffer() *buffer.Buffer[recordtypes.Notification] {
	return d.notification
}

// OnGazeAppend registers the Outlet Manager's mirror hook for the gaze stream. Registering a nil
// hook disables mirroring.
func (d *Dispatcher) OnGazeAppend(fn func(recordtypes.GazeRecord)) { d.onGazeAppend = fn }

// OnEyeImageAppend registers the Outlet Manager's mirror hook for the eye-image stream.
func (d *Dispatcher) OnEyeImageAppend(fn func(recordtypes.EyeImage)) { d.onEyeImageAppend = fn }

// OnExtSignalAppend registers the Outlet Manager's mirror hook for the ext-signal stream.
func (d *Dispatcher) OnExtSignalAppend(fn func(recordtypes.ExtSignal)) { d.onExtSignalAppend = fn }

// OnTimeSyncAppend registers the Outlet Manager's mirror hook for the time-sync stream.
func (d *Dispatcher) OnTimeSyncAppend(fn func(recordtypes.TimeSync)) { d.onTimeSyncAppend = fn }

// OnPositioningAppend registers the Outlet Manager's mirror hook for the positioning stream.
func (d *Dispatcher) OnPositioningAppend(fn func(recordtypes.Positioning)) {
	d.onPositioningAppend = fn
}

// OnNotificationAppend registers the Outlet Manager's mirror hook for the notification stream.
func (d *Dispatcher) OnNotificationAppend(fn func(recordtypes.Notification)) {
	d.onNotificationAppend = fn
}

// SetMergeOpenness turns the "merge eye-openness into gaze" policy on or off (§4.2). Turning it
// on requires the EyeOpenness capability. Turning it off while staging is non-empty flushes
// staging to the Gaze Buffer as-is.
func (d *Dispatcher) SetMergeOpenness(on bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if on == d.mergeFlag {
		return nil
	}
	if on && !d.tracker.Capabilities().EyeOpenness {
		return xerrors.CapabilityUnavailable("tracker does not advertise eye-openness")
	}
	if !on {
		for _, r := range d.staging.Flush() {
			d.gaze.Append(r)
			d.mirrorGaze(r)
		}
	}
	d.mergeFlag = on
	return nil
}

// StartGaze subscribes the gaze stream. Idempotent relative to recordingGaze. Under the merge
// policy, it also starts EyeOpenness if not already running.
func (d *Dispatcher) StartGaze() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startGazeLocked()
}

func (d *Dispatcher) startGazeLocked() error {
	if d.recordingGaze {
		return nil
	}
	if err := d.tracker.SubscribeGaze(d.handleGaze); err != nil {
		return xerrors.Device(err, "subscribe gaze")
	}
	d.recordingGaze = true
	if d.mergeFlag && !d.recordingOpenness {
		return d.startOpennessLocked()
	}
	return nil
}

// StartEyeOpenness subscribes the eye-openness stream. Under the merge policy, it also starts
// Gaze if not already running.
func (d *Dispatcher) StartEyeOpenness() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startOpennessLocked()
}

func (d *Dispatcher) startOpennessLocked() error {
	if d.recordingOpenness {
		return nil
	}
	if !d.tracker.Capabilities().EyeOpenness {
		return xerrors.CapabilityUnavailable("tracker does not advertise eye-openness")
	}
	if err := d.tracker.SubscribeEyeOpenness(d.handleOpenness); err != nil {
		return xerrors.Device(err, "subscribe eye openness")
	}
	d.recordingOpenness = true
	if d.mergeFlag && !d.recordingGaze {
		return d.startGazeLocked()
	}
	return nil
}

// StopGaze unsubscribes the gaze stream. Idempotent (§8 invariant 7). Under the merge policy it
// also stops EyeOpenness.
func (d *Dispatcher) StopGaze() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopGazeLocked()
}

func (d *Dispatcher) stopGazeLocked() error {
	if !d.recordingGaze {
		return nil
	}
	if err := d.tracker.UnsubscribeGaze(); err != nil {
		return xerrors.Device(err, "unsubscribe gaze")
	}
	d.recordingGaze = false
	if d.mergeFlag && d.recordingOpenness {
		return d.stopOpennessLocked()
	}
	return nil
}

// StopEyeOpenness unsubscribes the eye-openness stream. Idempotent. Under the merge policy it
// also stops Gaze.
func (d *Dispatcher) StopEyeOpenness() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopOpennessLocked()
}

func (d *Dispatcher) stopOpennessLocked() error {
	if !d.recordingOpenness {
		return nil
	}
	if err := d.tracker.UnsubscribeEyeOpenness(); err != nil {
		return xerrors.Device(err, "unsubscribe eye openness")
	}
	d.recordingOpenness = false
	if d.mergeFlag && d.recordingGaze {
		return d.stopGazeLocked()
	}
	return nil
}

// handleGaze is the vendor callback for raw gaze samples. It runs on a thread owned by the
// device SDK.
func (d *Dispatcher) handleGaze(r recordtypes.GazeRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mergeFlag && d.recordingOpenness {
		for _, merged := range d.staging.ArriveGaze(r.DeviceTS, r.SystemTS, r.Left, r.Right) {
			d.gaze.Append(merged)
			d.mirrorGaze(merged)
		}
		return
	}
	d.gaze.Append(r)
	d.mirrorGaze(r)
}

// handleOpenness is the vendor callback for raw eye-openness samples.
func (d *Dispatcher) handleOpenness(deviceTS, systemTS int64, left, right recordtypes.Openness) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mergeFlag && d.recordingGaze {
		for _, merged := range d.staging.ArriveOpenness(deviceTS, systemTS, left, right) {
			d.gaze.Append(merged)
			d.mirrorGaze(merged)
		}
		return
	}
	rec := recordtypes.GazeRecord{
		DeviceTS: deviceTS,
		SystemTS: systemTS,
		Left:     recordtypes.UnavailableEyeData().WithOpenness(left),
		Right:    recordtypes.UnavailableEyeData().WithOpenness(right),
	}
	d.gaze.Append(rec)
	d.mirrorGaze(rec)
}

func (d *Dispatcher) mirrorGaze(r recordtypes.GazeRecord) {
	if d.onGazeAppend != nil {
		d.onGazeAppend(r)
	}
}

// AttachEyeImage subscribes the eye-image stream, appending every frame to its buffer.
func (d *Dispatcher) AttachEyeImage() error {
	if err := d.tracker.SubscribeEyeImage(func(img recordtypes.EyeImage) {
		d.eyeImage.Append(img)
		if d.onEyeImageAppend != nil {
			d.onEyeImageAppend(img)
		}
	}); err != nil {
		return xerrors.Device(err, "subscribe eye image")
	}
	return nil
}

// DetachEyeImage unsubscribes the eye-image stream.
func (d *Dispatcher) DetachEyeImage() error {
	if err := d.tracker.UnsubscribeEyeImage(); err != nil {
		return xerrors.Device(err, "unsubscribe eye image")
	}
	return nil
}

// AttachExtSignal subscribes the external-signal stream.
func (d *Dispatcher) AttachExtSignal() error {
	if err := d.tracker.SubscribeExtSignal(func(s recordtypes.ExtSignal) {
		d.extSignal.Append(s)
		if d.onExtSignalAppend != nil {
			d.onExtSignalAppend(s)
		}
	}); err != nil {
		return xerrors.Device(err, "subscribe ext signal")
	}
	return nil
}

// DetachExtSignal unsubscribes the external-signal stream.
func (d *Dispatcher) DetachExtSignal() error {
	if err := d.tracker.UnsubscribeExtSignal(); err != nil {
		return xerrors.Device(err, "unsubscribe ext signal")
	}
	return nil
}

// AttachTimeSync subscribes the time-sync stream.
func (d *Dispatcher) AttachTimeSync() error {
	if err := d.tracker.SubscribeTimeSync(func(s recordtypes.TimeSync) {
		d.timeSync.Append(s)
		if d.onTimeSyncAppend != nil {
			d.onTimeSyncAppend(s)
		}
	}); err != nil {
		return xerrors.Device(err, "subscribe time sync")
	}
	return nil
}

// DetachTimeSync unsubscribes the time-sync stream.
func (d *Dispatcher) DetachTimeSync() error {
	if err := d.tracker.UnsubscribeTimeSync(); err != nil {
		return xerrors.Device(err, "unsubscribe time sync")
	}
	return nil
}

// AttachPositioning subscribes the positioning stream.
func (d *Dispatcher) AttachPositioning() error {
	if !d.tracker.Capabilities().Positioning {
		return xerrors.CapabilityUnavailable("tracker does not advertise positioning")
	}
	if err := d.tracker.SubscribePositioning(func(p recordtypes.Positioning) {
		d.positioning.Append(p)
		if d.onPositioningAppend != nil {
			d.onPositioningAppend(p)
		}
	}); err != nil {
		return xerrors.Device(err, "subscribe positioning")
	}
	return nil
}

// DetachPositioning unsubscribes the positioning stream.
func (d *Dispatcher) DetachPositioning() error {
	if err := d.tracker.UnsubscribePositioning(); err != nil {
		return xerrors.Device(err, "unsubscribe positioning")
	}
	return nil
}

// AttachNotifications subscribes the notification stream. Sessions start this one by default
// (§4.7).
func (d *Dispatcher) AttachNotifications() error {
	if err := d.tracker.SubscribeNotifications(func(n recordtypes.Notification) {
		d.notification.Append(n)
		if d.onNotificationAppend != nil {
			d.onNotificationAppend(n)
		}
	}); err != nil {
		return xerrors.Device(err, "subscribe notifications")
	}
	return nil
}

// DetachNotifications unsubscribes the notification stream.
func (d *Dispatcher) DetachNotifications() error {
	if err := d.tracker.UnsubscribeNotifications(); err != nil {
		return xerrors.Device(err, "unsubscribe notifications")
	}
	return nil
}

// AttachStreamErrorLogging registers the vendor stream-error callback, tagging every report with
// this dispatcher's device serial before handing it to the shared Collector (§4.6).
func (d *Dispatcher) AttachStreamErrorLogging() error {
	return d.tracker.SubscribeStreamError(func(kind recordtypes.StreamKind, text string) {
		d.logs.AddStreamError(0, d.serial, kind, text)
		logrus.WithFields(logrus.Fields{"serial": d.serial, "stream": kind.String()}).Warn(text)
	})
}

// DetachStreamErrorLogging unregisters the stream-error callback.
func (d *Dispatcher) DetachStreamErrorLogging() error {
	return d.tracker.UnsubscribeStreamError()
}

// StopAll unsubscribes every stream this dispatcher may have started, clearing buffers. Used by
// Session teardown (§4.7); errors are swallowed the way destructor paths do throughout this
// layer, after being logged.
func (d *Dispatcher) StopAll() {
	d.mu.Lock()
	recordingGaze := d.recordingGaze
	recordingOpenness := d.recordingOpenness
	d.mu.Unlock()

	if recordingGaze {
		if err := d.StopGaze(); err != nil {
			logrus.WithError(err).Warn("stop gaze during teardown")
		}
	}
	if recordingOpenness {
		if err := d.StopEyeOpenness(); err != nil {
			logrus.WithError(err).Warn("stop eye openness during teardown")
		}
	}
	_ = d.DetachEyeImage()
	_ = d.DetachExtSignal()
	_ = d.DetachTimeSync()
	_ = d.DetachPositioning()
	_ = d.DetachNotifications()

	d.gaze.Clear()
	d.eyeImage.Clear()
	d.extSignal.Clear()
	d.timeSync.Clear()
	d.positioning.Clear()
	d.notification.Clear()
}
