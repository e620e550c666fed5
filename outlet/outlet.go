package outlet

import (
	"fmt"
	"sync"

	"github.com/gazeio/ettbuffer/recordtypes"
	"github.com/gazeio/ettbuffer/transport"
	"github.com/gazeio/ettbuffer/xerrors"
)

// Identity is the subset of a device's identity attached as outlet metadata at open time (§4.3).
type Identity struct {
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
	TrackingMode string
}

// Manager owns every outlet open for one session: exactly one per (session, stream kind).
type Manager struct {
	bus      transport.Bus
	identity Identity

	mu      sync.Mutex
	outlets map[recordtypes.StreamKind]transport.Publisher
}

// NewManager creates a Manager publishing through bus, tagging every outlet it opens with
// identity.
func NewManager(bus transport.Bus, identity Identity) *Manager {
	return &Manager{bus: bus, identity: identity, outlets: make(map[recordtypes.StreamKind]transport.Publisher)}
}

func streamName(kind recordtypes.StreamKind) string {
	return fmt.Sprintf("Tracker_%s", kind.String())
}

func (m *Manager) metadata(kind recordtypes.StreamKind, channelCount int, format string) transport.Metadata {
	return transport.Metadata{
		Manufacturer:  m.identity.Manufacturer,
		Model:         m.identity.Model,
		Serial:        m.identity.Serial,
		Firmware:      m.identity.Firmware,
		TrackingMode:  m.identity.TrackingMode,
		StreamKind:    kind.String(),
		ChannelCount:  channelCount,
		ChannelFormat: format,
	}
}

// open registers a new outlet for kind with the given channel metadata. Rejected with
// InvalidOperation if one is already open for this kind (§4.3: exactly one outlet per
// (session, stream_kind)).
func (m *Manager) open(kind recordtypes.StreamKind, channelCount int, format string) (transport.Publisher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.outlets[kind]; exists {
		return nil, xerrors.InvalidOperation(fmt.Sprintf("outlet already open for %s", kind.String()))
	}
	pub, err := m.bus.Publish(streamName(kind), m.metadata(kind, channelCount, format))
	if err != nil {
		return nil, xerrors.Device(err, "open outlet")
	}
	m.outlets[kind] = pub
	return pub, nil
}

// OpenGaze opens the Gaze outlet (42 f32 channels, §6) and returns a publish function the
// dispatcher's mirror hook can call directly on every buffer append.
func (m *Manager) OpenGaze() (func(recordtypes.GazeRecord), error) {
	pub, err := m.open(recordtypes.Gaze, 42, "f32")
	if err != nil {
		return nil, err
	}
	return func(r recordtypes.GazeRecord) {
		publish(pub, recordtypes.MicrosToSeconds(r.SystemTS), EncodeGaze(r))
	}, nil
}

// OpenEyeImage opens the EyeImage outlet. compressed selects VideoCompressed (snappy) over
// VideoRaw encoding of the frame payload (§1 domain stack: both are offered by this layer).
func (m *Manager) OpenEyeImage(compressed bool) (func(recordtypes.EyeImage), error) {
	format := "VideoRaw"
	encode := EncodeEyeImageRaw
	if compressed {
		format = "VideoCompressed"
		encode = EncodeEyeImageCompressed
	}
	pub, err := m.open(recordtypes.EyeImageStream, 1, format)
	if err != nil {
		return nil, err
	}
	return func(img recordtypes.EyeImage) {
		publish(pub, recordtypes.MicrosToSeconds(img.SystemTS), encode(img))
	}, nil
}

// OpenExtSignal opens the ExtSignal outlet (2 i64 channels, §6).
func (m *Manager) OpenExtSignal() (func(recordtypes.ExtSignal), error) {
	pub, err := m.open(recordtypes.ExtSignalStream, 2, "i64")
	if err != nil {
		return nil, err
	}
	return func(s recordtypes.ExtSignal) {
		publish(pub, recordtypes.MicrosToSeconds(s.SystemTS), EncodeExtSignal(s))
	}, nil
}

// OpenTimeSync opens the TimeSync outlet (3 i64 channels, §6).
func (m *Manager) OpenTimeSync() (func(recordtypes.TimeSync), error) {
	pub, err := m.open(recordtypes.TimeSyncStream, 3, "i64")
	if err != nil {
		return nil, err
	}
	return func(s recordtypes.TimeSync) {
		publish(pub, recordtypes.MicrosToSeconds(s.SystemRequestTS), EncodeTimeSync(s))
	}, nil
}

// OpenPositioning opens the Positioning outlet (8 f32 channels, §6). Positioning carries no
// per-record timestamp, so every sample is published at timestamp 0.
func (m *Manager) OpenPositioning() (func(recordtypes.Positioning), error) {
	pub, err := m.open(recordtypes.PositioningStream, 8, "f32")
	if err != nil {
		return nil, err
	}
	return func(p recordtypes.Positioning) {
		publish(pub, 0, EncodePositioning(p))
	}, nil
}

func publish(pub transport.Publisher, ts float64, payload []byte) {
	_ = pub.Push(transport.Sample{Timestamp: ts, Payload: payload})
}

// Close stops and releases the outlet for kind, if open (§4.3 close(stream_kind)).
func (m *Manager) Close(kind recordtypes.StreamKind) error {
	m.mu.Lock()
	pub, ok := m.outlets[kind]
	if ok {
		delete(m.outlets, kind)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return pub.Close()
}

// CloseAll releases every outlet this Manager has open.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	kinds := make([]recordtypes.StreamKind, 0, len(m.outlets))
	for k := range m.outlets {
		kinds = append(kinds, k)
	}
	m.mu.Unlock()
	for _, k := range kinds {
		_ = m.Close(k)
	}
}
