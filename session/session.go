// Package session implements Session / Lifecycle (specification §4.7): owning one Dispatcher, one
// set of outlets, an optional calibration worker, and the process-wide session registry.
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gazeio/ettbuffer/calibration"
	"github.com/gazeio/ettbuffer/device"
	"github.com/gazeio/ettbuffer/dispatch"
	"github.com/gazeio/ettbuffer/logcollector"
	"github.com/gazeio/ettbuffer/outlet"
	"github.com/gazeio/ettbuffer/transport"
	"github.com/gazeio/ettbuffer/xerrors"
)

// registry is the single process-wide list of live sessions, guarded by its own lock (§5).
var registry = struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}{sessions: make(map[uuid.UUID]*Session)}

func registerSession(s *Session) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.sessions[s.ID] = s
}

func unregisterSession(id uuid.UUID) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.sessions, id)
}

// Count reports the number of live sessions. Exposed for tests and diagnostics.
func Count() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return len(registry.sessions)
}

// Session is one connected tracker's full lifecycle: subscriptions, buffers, outlets, and
// optional calibration.
type Session struct {
	ID uuid.UUID

	tracker device.Tracker
	logs    *logcollector.Collector

	mu          sync.Mutex
	Dispatcher  *dispatch.Dispatcher
	Outlets     *outlet.Manager
	calibration *calibration.Worker

	loggingEnabled    bool
	calibrationEntered bool
}

// Open constructs a Session around an already-connected tracker, immediately reading identity and
// capabilities, starting the Notification stream by default, and registering stream-error logging
// if logs is non-nil (§4.7 Construction).
func Open(tracker device.Tracker, bus transport.Bus, logs *logcollector.Collector) (*Session, error) {
	identity := tracker.Identity()
	s := &Session{
		ID:      uuid.New(),
		tracker: tracker,
		logs:    logs,
	}
	s.Dispatcher = dispatch.New(tracker, logs, identity.Serial)
	s.Outlets = outlet.NewManager(bus, outlet.Identity{
		Manufacturer: identity.Manufacturer,
		Model:        identity.Model,
		Serial:       identity.Serial,
		Firmware:     identity.Firmware,
		TrackingMode: identity.TrackingMode,
	})

	if err := s.Dispatcher.AttachNotifications(); err != nil {
		return nil, err
	}
	if logs != nil {
		if err := s.Dispatcher.AttachStreamErrorLogging(); err != nil {
			return nil, err
		}
		s.loggingEnabled = true
	}

	registerSession(s)
	return s, nil
}

// OpenByAddress connects through connector using a device network address, then opens a Session
// around it.
func OpenByAddress(connector device.Connector, address string, bus transport.Bus, logs *logcollector.Collector) (*Session, error) {
	tracker, err := connector.ConnectAddress(address)
	if err != nil {
		return nil, xerrors.Device(err, "connect by address")
	}
	return Open(tracker, bus, logs)
}

// OpenByHandle connects through connector using an existing device handle, then opens a Session
// around it.
func OpenByHandle(connector device.Connector, handle string, bus transport.Bus, logs *logcollector.Collector) (*Session, error) {
	tracker, err := connector.ConnectHandle(handle)
	if err != nil {
		return nil, xerrors.Device(err, "connect by handle")
	}
	return Open(tracker, bus, logs)
}

// Identity re-reads the tracker's current identity.
func (s *Session) Identity() device.Identity { return s.tracker.Identity() }

// Capabilities re-reads the tracker's current capabilities.
func (s *Session) Capabilities() device.Capabilities { return s.tracker.Capabilities() }

// SetDeviceName sets the device name and re-reads identity/capability (§4.7 setter side effects).
func (s *Session) SetDeviceName(name string) error {
	if err := s.tracker.SetDeviceName(name); err != nil {
		return xerrors.Device(err, "set device name")
	}
	_ = s.tracker.Identity()
	_ = s.tracker.Capabilities()
	return nil
}

// SetGazeOutputFrequency sets the gaze frequency and re-reads identity/capability.
func (s *Session) SetGazeOutputFrequency(hz float64) error {
	if err := s.tracker.SetGazeOutputFrequency(hz); err != nil {
		return xerrors.Device(err, "set gaze output frequency")
	}
	_ = s.tracker.Identity()
	_ = s.tracker.Capabilities()
	return nil
}

// SetTrackingMode sets the tracking mode and re-reads identity/capability.
func (s *Session) SetTrackingMode(mode string) error {
	if err := s.tracker.SetTrackingMode(mode); err != nil {
		return xerrors.Device(err, "set tracking mode")
	}
	_ = s.tracker.Identity()
	_ = s.tracker.Capabilities()
	return nil
}

// SetLicenses applies new licenses and re-reads identity/capability.
func (s *Session) SetLicenses(licenses []string) error {
	if err := s.tracker.SetLicenses(licenses); err != nil {
		return xerrors.Device(err, "set licenses")
	}
	_ = s.tracker.Identity()
	_ = s.tracker.Capabilities()
	return nil
}

// EnterCalibration starts the calibration worker for this session. Rejected if one is already
// running.
func (s *Session) EnterCalibration(professionalMode bool) (*calibration.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calibration != nil {
		return nil, xerrors.NotInCalibrationMode("calibration already entered for this session")
	}
	w := calibration.NewWorker(s.tracker)
	if err := w.Enter(professionalMode); err != nil {
		return nil, err
	}
	s.calibration = w
	s.calibrationEntered = true
	return w, nil
}

// Calibration returns the session's active calibration worker, if any.
func (s *Session) Calibration() *calibration.Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibration
}

// Close tears the session down per §4.7 Destruction: stop every stream with buffer-clear, leave
// calibration if entered, unsubscribe stream errors, release outlets, and remove from the
// process-wide registry.
func (s *Session) Close() error {
	s.Dispatcher.StopAll()
	_ = s.Dispatcher.DetachNotifications()

	s.mu.Lock()
	entered := s.calibrationEntered
	loggingEnabled := s.loggingEnabled
	s.mu.Unlock()

	if entered {
		if err := calibration.ForceLeave(s.tracker); err != nil {
			logrus.WithError(err).Warn("leave calibration during session close")
		}
	}
	if loggingEnabled {
		if err := s.Dispatcher.DetachStreamErrorLogging(); err != nil {
			logrus.WithError(err).Warn("detach stream error logging during session close")
		}
	}

	s.Outlets.CloseAll()
	unregisterSession(s.ID)
	return nil
}
