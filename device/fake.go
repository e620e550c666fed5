package device

import (
	"sync"

	"github.com/gazeio/ettbuffer/recordtypes"
	"github.com/gazeio/ettbuffer/xerrors"
)

// Fake is an in-memory Tracker used by every other package's tests. Subscribe* calls record the
// callback; Inject* methods stand in for the vendor SDK calling back, invoking the registered
// callback synchronously on the caller's goroutine, so the effect is visible when Inject* returns.
type Fake struct {
	mu sync.Mutex

	identity Identity
	caps     Capabilities

	gazeCB         GazeCallback
	opennessCB     OpennessCallback
	eyeImageCB     EyeImageCallback
	extSignalCB    ExtSignalCallback
	timeSyncCB     TimeSyncCallback
	positioningCB  PositioningCallback
	notificationCB NotificationCallback
	logCB          LogCallback
	streamErrorCB  StreamErrorCallback

	calibrationEntered bool
	calibrationPoints  []recordtypes.CalibrationPoint
	calibrationPayload []byte

	closed bool
}

// NewFake creates a Fake tracker with the given identity/capabilities already populated, as if a
// real connect had already completed the handshake.
func NewFake(identity Identity, caps Capabilities) *Fake {
	return &Fake{identity: identity, caps: caps}
}

func (f *Fake) Identity() Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity
}

func (f *Fake) Capabilities() Capabilities {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caps
}

func (f *Fake) SetDeviceName(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity.Name = name
	return nil
}

func (f *Fake) SetGazeOutputFrequency(hz float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity.GazeFrequency = hz
	return nil
}

func (f *Fake) SetTrackingMode(mode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity.TrackingMode = mode
	return nil
}

func (f *Fake) SetLicenses(licenses []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity.Licenses = licenses
	return nil
}

func (f *Fake) SubscribeGaze(cb GazeCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gazeCB = cb
	return nil
}

func (f *Fake) UnsubscribeGaze() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gazeCB = nil
	return nil
}

func (f *Fake) SubscribeEyeOpenness(cb OpennessCallback) error {
	if !f.Capabilities().EyeOpenness {
		return xerrors.CapabilityUnavailable("tracker does not advertise eye-openness")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opennessCB = cb
	return nil
}

func (f *Fake) UnsubscribeEyeOpenness() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opennessCB = nil
	return nil
}

func (f *Fake) SubscribeEyeImage(cb EyeImageCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eyeImageCB = cb
	return nil
}

func (f *Fake) UnsubscribeEyeImage() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eyeImageCB = nil
	return nil
}

func (f *Fake) SubscribeExtSignal(cb ExtSignalCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extSignalCB = cb
	return nil
}

func (f *Fake) UnsubscribeExtSignal() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extSignalCB = nil
	return nil
}

func (f *Fake) SubscribeTimeSync(cb TimeSyncCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeSyncCB = cb
	return nil
}

func (f *Fake) UnsubscribeTimeSync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeSyncCB = nil
	return nil
}

func (f *Fake) SubscribePositioning(cb PositioningCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positioningCB = cb
	return nil
}

func (f *Fake) UnsubscribePositioning() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positioningCB = nil
	return nil
}

func (f *Fake) SubscribeNotifications(cb NotificationCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notificationCB = cb
	return nil
}

func (f *Fake) UnsubscribeNotifications() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notificationCB = nil
	return nil
}

func (f *Fake) SubscribeLog(cb LogCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logCB = cb
	return nil
}

func (f *Fake) UnsubscribeLog() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logCB = nil
	return nil
}

func (f *Fake) SubscribeStreamError(cb StreamErrorCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamErrorCB = cb
	return nil
}

func (f *Fake) UnsubscribeStreamError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamErrorCB = nil
	return nil
}

func (f *Fake) EnterCalibrationMode(professionalMode bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calibrationEntered = true
	return nil
}

func (f *Fake) CalibrationCollectData(point recordtypes.CalibrationPoint, eye recordtypes.CalibrationEye) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.calibrationEntered {
		return xerrors.NotInCalibrationMode("collect data requested outside calibration mode")
	}
	f.calibrationPoints = append(f.calibrationPoints, point)
	return nil
}

func (f *Fake) CalibrationDiscardData(point recordtypes.CalibrationPoint, eye recordtypes.CalibrationEye) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.calibrationEntered {
		return xerrors.NotInCalibrationMode("discard data requested outside calibration mode")
	}
	filtered := f.calibrationPoints[:0]
	for _, p := range f.calibrationPoints {
		if p != point {
			filtered = append(filtered, p)
		}
	}
	f.calibrationPoints = filtered
	return nil
}

func (f *Fake) CalibrationCompute() ([]recordtypes.CalibrationPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.calibrationEntered {
		return nil, xerrors.NotInCalibrationMode("compute requested outside calibration mode")
	}
	f.calibrationPayload = []byte("calibration-blob")
	return append([]recordtypes.CalibrationPoint(nil), f.calibrationPoints...), nil
}

func (f *Fake) CalibrationGetData() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.calibrationEntered {
		return nil, xerrors.NotInCalibrationMode("get data requested outside calibration mode")
	}
	return append([]byte(nil), f.calibrationPayload...), nil
}

func (f *Fake) CalibrationApplyData(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.calibrationEntered {
		return xerrors.NotInCalibrationMode("apply data requested outside calibration mode")
	}
	f.calibrationPayload = append([]byte(nil), data...)
	return nil
}

func (f *Fake) LeaveCalibrationMode() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calibrationEntered = false
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// InjectGaze delivers a gaze record as if the vendor thread had called back.
func (f *Fake) InjectGaze(r recordtypes.GazeRecord) {
	f.mu.Lock()
	cb := f.gazeCB
	f.mu.Unlock()
	if cb != nil {
		cb(r)
	}
}

// InjectOpenness delivers an openness sample as if the vendor thread had called back.
func (f *Fake) InjectOpenness(deviceTS, systemTS int64, left, right recordtypes.Openness) {
	f.mu.Lock()
	cb := f.opennessCB
	f.mu.Unlock()
	if cb != nil {
		cb(deviceTS, systemTS, left, right)
	}
}

// InjectEyeImage delivers an eye-camera frame as if the vendor thread had called back.
func (f *Fake) InjectEyeImage(img recordtypes.EyeImage) {
	f.mu.Lock()
	cb := f.eyeImageCB
	f.mu.Unlock()
	if cb != nil {
		cb(img)
	}
}

// InjectExtSignal delivers an external trigger sample.
func (f *Fake) InjectExtSignal(s recordtypes.ExtSignal) {
	f.mu.Lock()
	cb := f.extSignalCB
	f.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// InjectTimeSync delivers a clock-sync round trip.
func (f *Fake) InjectTimeSync(s recordtypes.TimeSync) {
	f.mu.Lock()
	cb := f.timeSyncCB
	f.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// InjectPositioning delivers a user-positioning-guide sample.
func (f *Fake) InjectPositioning(p recordtypes.Positioning) {
	f.mu.Lock()
	cb := f.positioningCB
	f.mu.Unlock()
	if cb != nil {
		cb(p)
	}
}

// InjectNotification delivers a driver notification line.
func (f *Fake) InjectNotification(n recordtypes.Notification) {
	f.mu.Lock()
	cb := f.notificationCB
	f.mu.Unlock()
	if cb != nil {
		cb(n)
	}
}

// InjectLog delivers a driver log line.
func (f *Fake) InjectLog(ts int64, source, level, text string) {
	f.mu.Lock()
	cb := f.logCB
	f.mu.Unlock()
	if cb != nil {
		cb(ts, source, level, text)
	}
}

// InjectStreamError delivers an asynchronous stream error.
func (f *Fake) InjectStreamError(kind recordtypes.StreamKind, text string) {
	f.mu.Lock()
	cb := f.streamErrorCB
	f.mu.Unlock()
	if cb != nil {
		cb(kind, text)
	}
}

// IsClosed reports whether Close has been called, for teardown assertions.
func (f *Fake) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// CalibrationEntered reports whether the fake currently considers itself in calibration mode, for
// force_leave recovery assertions.
func (f *Fake) CalibrationEntered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calibrationEntered
}

var _ Tracker = (*Fake)(nil)
