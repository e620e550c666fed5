// Package device declares the boundary this layer shares with the vendor eye-tracker SDK. The
// SDK itself is out of scope (specification §1): it is treated as a black box that invokes
// registered callbacks on its own threads and exposes subscribe/unsubscribe/apply-calibration
// entry points. This package holds only the interface that boundary has to satisfy, plus an
// in-memory Fake used by every other package's tests.
package device

import (
	"github.com/gazeio/ettbuffer/recordtypes"
)

// Identity is the read-only device information a Session reads at construction and after any
// setter with identity side effects.
type Identity struct {
	Manufacturer  string
	Model         string
	Serial        string
	Firmware      string
	Address       string
	Name          string
	TrackingMode  string
	GazeFrequency float64
	Licenses      []string
}

// Capabilities advertises which optional streams and features the connected tracker supports.
type Capabilities struct {
	EyeOpenness bool
	EyeImage    bool
	Positioning bool
	ExtSignal   bool
}

// GazeCallback is invoked on a vendor-owned thread for every raw gaze sample.
type GazeCallback func(recordtypes.GazeRecord)

// OpennessCallback is invoked on a vendor-owned thread for every raw eye-openness sample. left
// and right carry each eye's openness value only; no gaze fields accompany it.
type OpennessCallback func(deviceTS, systemTS int64, left, right recordtypes.Openness)

// EyeImageCallback is invoked on a vendor-owned thread for every eye-camera frame.
type EyeImageCallback func(recordtypes.EyeImage)

// ExtSignalCallback is invoked on a vendor-owned thread for every external trigger edge.
type ExtSignalCallback func(recordtypes.ExtSignal)

// TimeSyncCallback is invoked on a vendor-owned thread for every clock-sync round trip.
type TimeSyncCallback func(recordtypes.TimeSync)

// PositioningCallback is invoked on a vendor-owned thread for every user-positioning-guide sample.
type PositioningCallback func(recordtypes.Positioning)

// NotificationCallback is invoked on a vendor-owned thread for every driver notification line.
type NotificationCallback func(recordtypes.Notification)

// LogCallback is invoked on a vendor-owned thread for every driver log line.
type LogCallback func(ts int64, source, level, text string)

// StreamErrorCallback is invoked on a vendor-owned thread when a stream subscription fails
// asynchronously (e.g. a dropped connection mid-stream).
type StreamErrorCallback func(kind recordtypes.StreamKind, text string)

// Tracker is the subset of the vendor SDK's per-device surface this layer drives. A real binding
// implements it against the vendor's C API; Fake implements it in-memory for tests.
type Tracker interface {
	Identity() Identity
	Capabilities() Capabilities

	SetDeviceName(name string) error
	SetGazeOutputFrequency(hz float64) error
	SetTrackingMode(mode string) error
	SetLicenses(licenses []string) error

	SubscribeGaze(cb GazeCallback) error
	UnsubscribeGaze() error
	SubscribeEyeOpenness(cb OpennessCallback) error
	UnsubscribeEyeOpenness() error
	SubscribeEyeImage(cb EyeImageCallback) error
	UnsubscribeEyeImage() error
	SubscribeExtSignal(cb ExtSignalCallback) error
	UnsubscribeExtSignal() error
	SubscribeTimeSync(cb TimeSyncCallback) error
	UnsubscribeTimeSync() error
	SubscribePositioning(cb PositioningCallback) error
	UnsubscribePositioning() error
	SubscribeNotifications(cb NotificationCallback) error
	UnsubscribeNotifications() error

	SubscribeLog(cb LogCallback) error
	UnsubscribeLog() error
	SubscribeStreamError(cb StreamErrorCallback) error
	UnsubscribeStreamError() error

	// EnterCalibrationMode and the Calibration* methods block the calling goroutine; the
	// calibration worker is the only caller that ever invokes them.
	EnterCalibrationMode(professionalMode bool) error
	CalibrationCollectData(point recordtypes.CalibrationPoint, eye recordtypes.CalibrationEye) error
	CalibrationDiscardData(point recordtypes.CalibrationPoint, eye recordtypes.CalibrationEye) error
	CalibrationCompute() ([]recordtypes.CalibrationPoint, error)
	CalibrationGetData() ([]byte, error)
	CalibrationApplyData(data []byte) error
	LeaveCalibrationMode() error

	Close() error
}

// Connector opens a Tracker by network address or device handle. The real binding dials the vendor
// SDK; this layer never constructs one directly in production code paths it owns.
type Connector interface {
	ConnectAddress(address string) (Tracker, error)
	ConnectHandle(handle string) (Tracker, error)
}
