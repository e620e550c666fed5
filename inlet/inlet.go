// Package inlet implements the Inlet Manager (specification §4.4): discovering remote outlets,
// opening them into a local InletBuffer of the right record type, and mirroring the local Buffer
// API with the added choice of keying time-range operations by local or remote timestamp.
package inlet

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/gazeio/ettbuffer/buffer"
	"github.com/gazeio/ettbuffer/internal/safego"
	"github.com/gazeio/ettbuffer/recordtypes"
	"github.com/gazeio/ettbuffer/transport"
	"github.com/gazeio/ettbuffer/xerrors"
)

// nextID is the single process-wide inlet id counter (§5: "the inlet-id counter is atomic").
var nextID atomic.Int64

type eyeImageInlet struct {
	buf        *buffer.InletBuffer[recordtypes.EyeImage]
	compressed bool
}

// Manager owns every inlet opened by the process, keyed by an opaque monotonically increasing id.
type Manager struct {
	bus transport.Bus

	mu          sync.Mutex
	kinds       map[int64]recordtypes.StreamKind
	descriptors map[int64]transport.Descriptor
	subs        map[int64]transport.Subscriber

	gaze        map[int64]*buffer.InletBuffer[recordtypes.GazeRecord]
	eyeImage    map[int64]*eyeImageInlet
	extSignal   map[int64]*buffer.InletBuffer[recordtypes.ExtSignal]
	timeSync    map[int64]*buffer.InletBuffer[recordtypes.TimeSync]
	positioning map[int64]*buffer.InletBuffer[recordtypes.Positioning]
}

// NewManager creates a Manager discovering and subscribing through bus.
func NewManager(bus transport.Bus) *Manager {
	return &Manager{
		bus:         bus,
		kinds:       make(map[int64]recordtypes.StreamKind),
		descriptors: make(map[int64]transport.Descriptor),
		subs:        make(map[int64]transport.Subscriber),
		gaze:        make(map[int64]*buffer.InletBuffer[recordtypes.GazeRecord]),
		eyeImage:    make(map[int64]*eyeImageInlet),
		extSignal:   make(map[int64]*buffer.InletBuffer[recordtypes.ExtSignal]),
		timeSync:    make(map[int64]*buffer.InletBuffer[recordtypes.TimeSync]),
		positioning: make(map[int64]*buffer.InletBuffer[recordtypes.Positioning]),
	}
}

// Discover returns the visible remote outlets, optionally filtered by a stream-kind string.
func (m *Manager) Discover(streamKindFilter string) ([]transport.Descriptor, error) {
	return m.bus.Discover(streamKindFilter)
}

func kindFromString(s string) (recordtypes.StreamKind, error) {
	switch s {
	case "Gaze":
		return recordtypes.Gaze, nil
	case "EyeImage":
		return recordtypes.EyeImageStream, nil
	case "ExtSignal":
		return recordtypes.ExtSignalStream, nil
	case "TimeSync":
		return recordtypes.TimeSyncStream, nil
	case "Positioning":
		return recordtypes.PositioningStream, nil
	default:
		return 0, xerrors.InvalidOperation("unsupported remote stream kind: " + s)
	}
}

// Open creates an InletBuffer of the record type matching d's declared stream kind and returns
// its id. If startListening is set, it also begins receiving immediately.
func (m *Manager) Open(d transport.Descriptor, initialBufferHint int, startListening bool) (int64, error) {
	kind, err := kindFromString(d.Meta.StreamKind)
	if err != nil {
		return 0, err
	}

	id := nextID.Add(1)
	m.mu.Lock()
	switch kind {
	case recordtypes.Gaze:
		b := buffer.NewInlet[recordtypes.GazeRecord](true)
		b.Reserve(initialBufferHint)
		m.gaze[id] = b
	case recordtypes.EyeImageStream:
		b := buffer.NewInlet[recordtypes.EyeImage](true)
		b.Reserve(initialBufferHint)
		m.eyeImage[id] = &eyeImageInlet{buf: b, compressed: d.Meta.ChannelFormat == "VideoCompressed"}
	case recordtypes.ExtSignalStream:
		b := buffer.NewInlet[recordtypes.ExtSignal](true)
		b.Reserve(initialBufferHint)
		m.extSignal[id] = b
	case recordtypes.TimeSyncStream:
		b := buffer.NewInlet[recordtypes.TimeSync](true)
		b.Reserve(initialBufferHint)
		m.timeSync[id] = b
	case recordtypes.PositioningStream:
		m.positioning[id] = buffer.NewInlet[recordtypes.Positioning](false)
	}
	m.kinds[id] = kind
	m.descriptors[id] = d
	m.mu.Unlock()

	if startListening {
		if err := m.StartListening(id); err != nil {
			return id, err
		}
	}
	return id, nil
}

// StartListening begins receiving for an already-open inlet. Idempotent.
func (m *Manager) StartListening(id int64) error {
	m.mu.Lock()
	if _, already := m.subs[id]; already {
		m.mu.Unlock()
		return nil
	}
	d, ok := m.descriptors[id]
	kind := m.kinds[id]
	m.mu.Unlock()
	if !ok {
		return xerrors.UnknownInlet("unknown inlet id")
	}

	sub, err := m.bus.Subscribe(d)
	if err != nil {
		return xerrors.Device(err, "subscribe inlet")
	}

	m.mu.Lock()
	m.subs[id] = sub
	m.mu.Unlock()

	safego.Go("inlet-listen", func() { m.ingestLoop(id, kind, sub) })
	return nil
}

func (m *Manager) ingestLoop(id int64, kind recordtypes.StreamKind, sub transport.Subscriber) {
	for sample := range sub.Samples() {
		if err := m.ingest(id, kind, sample); err != nil {
			logrus.WithError(err).Warn("inlet: decode sample")
		}
	}
}

func (m *Manager) ingest(id int64, kind recordtypes.StreamKind, ts transport.TimedSample) error {
	remoteTS := int64(ts.Sample.Timestamp * 1e6)

	switch kind {
	case recordtypes.Gaze:
		m.mu.Lock()
		b := m.gaze[id]
		m.mu.Unlock()
		if b == nil {
			return xerrors.UnknownInlet("inlet deleted")
		}
		rec, err := DecodeGaze(ts.Sample.Payload)
		if err != nil {
			return err
		}
		rec.SystemTS = remoteTS
		b.Append(buffer.InletRecord[recordtypes.GazeRecord]{Record: rec, LocalTS: ts.LocalTS, RemoteTS: remoteTS})

	case recordtypes.EyeImageStream:
		m.mu.Lock()
		e := m.eyeImage[id]
		m.mu.Unlock()
		if e == nil {
			return xerrors.UnknownInlet("inlet deleted")
		}
		rec, err := DecodeEyeImage(ts.Sample.Payload, e.compressed)
		if err != nil {
			return err
		}
		rec.SystemTS = remoteTS
		e.buf.Append(buffer.InletRecord[recordtypes.EyeImage]{Record: rec, LocalTS: ts.LocalTS, RemoteTS: remoteTS})

	case recordtypes.ExtSignalStream:
		m.mu.Lock()
		b := m.extSignal[id]
		m.mu.Unlock()
		if b == nil {
			return xerrors.UnknownInlet("inlet deleted")
		}
		rec, err := DecodeExtSignal(ts.Sample.Payload)
		if err != nil {
			return err
		}
		rec.SystemTS = remoteTS
		b.Append(buffer.InletRecord[recordtypes.ExtSignal]{Record: rec, LocalTS: ts.LocalTS, RemoteTS: remoteTS})

	case recordtypes.TimeSyncStream:
		m.mu.Lock()
		b := m.timeSync[id]
		m.mu.Unlock()
		if b == nil {
			return xerrors.UnknownInlet("inlet deleted")
		}
		rec, err := DecodeTimeSync(ts.Sample.Payload)
		if err != nil {
			return err
		}
		b.Append(buffer.InletRecord[recordtypes.TimeSync]{Record: rec, LocalTS: ts.LocalTS, RemoteTS: remoteTS})

	case recordtypes.PositioningStream:
		m.mu.Lock()
		b := m.positioning[id]
		m.mu.Unlock()
		if b == nil {
			return xerrors.UnknownInlet("inlet deleted")
		}
		rec, err := DecodePositioning(ts.Sample.Payload)
		if err != nil {
			return err
		}
		b.Append(buffer.InletRecord[recordtypes.Positioning]{Record: rec, LocalTS: ts.LocalTS, RemoteTS: remoteTS})
	}
	return nil
}

// StopListening closes the remote subscription for id. If clear is set, the accumulated buffer
// is also emptied.
func (m *Manager) StopListening(id int64, clear bool) error {
	m.mu.Lock()
	sub, ok := m.subs[id]
	if ok {
		delete(m.subs, id)
	}
	m.mu.Unlock()
	if !ok {
		if _, exists := m.kindOf(id); !exists {
			return xerrors.UnknownInlet("unknown inlet id")
		}
		return nil
	}
	_ = sub.Close()
	if clear {
		m.clear(id)
	}
	return nil
}

func (m *Manager) clear(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.gaze[id]; ok {
		b.Clear()
	}
	if e, ok := m.eyeImage[id]; ok {
		e.buf.Clear()
	}
	if b, ok := m.extSignal[id]; ok {
		b.Clear()
	}
	if b, ok := m.timeSync[id]; ok {
		b.Clear()
	}
	if b, ok := m.positioning[id]; ok {
		b.Clear()
	}
}

func (m *Manager) kindOf(id int64) (recordtypes.StreamKind, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.kinds[id]
	return k, ok
}

// Delete removes an inlet entirely, stopping its subscription first if still listening.
func (m *Manager) Delete(id int64) error {
	if _, ok := m.kindOf(id); !ok {
		return xerrors.UnknownInlet("unknown inlet id")
	}
	_ = m.StopListening(id, false)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kinds, id)
	delete(m.descriptors, id)
	delete(m.gaze, id)
	delete(m.eyeImage, id)
	delete(m.extSignal, id)
	delete(m.timeSync, id)
	delete(m.positioning, id)
	return nil
}

// GazeBuffer returns the InletBuffer backing a Gaze inlet.
func (m *Manager) GazeBuffer(id int64) (*buffer.InletBuffer[recordtypes.GazeRecord], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.gaze[id]
	if !ok {
		return nil, xerrors.UnknownInlet("unknown or wrong-kind inlet id")
	}
	return b, nil
}

// EyeImageBuffer returns the InletBuffer backing an EyeImage inlet.
func (m *Manager) EyeImageBuffer(id int64) (*buffer.InletBuffer[recordtypes.EyeImage], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.eyeImage[id]
	if !ok {
		return nil, xerrors.UnknownInlet("unknown or wrong-kind inlet id")
	}
	return e.buf, nil
}

// ExtSignalBuffer returns the InletBuffer backing an ExtSignal inlet.
func (m *Manager) ExtSignalBuffer(id int64) (*buffer.InletBuffer[recordtypes.ExtSignal], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.extSignal[id]
	if !ok {
		return nil, xerrors.UnknownInlet("unknown or wrong-kind inlet id")
	}
	return b, nil
}

// TimeSyncBuffer returns the InletBuffer backing a TimeSync inlet.
func (m *Manager) TimeSyncBuffer(id int64) (*buffer.InletBuffer[recordtypes.TimeSync], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.timeSync[id]
	if !ok {
		return nil, xerrors.UnknownInlet("unknown or wrong-kind inlet id")
	}
	return b, nil
}

// PositioningBuffer returns the InletBuffer backing a Positioning inlet. Time-range operations on
// it always fail with InvalidOperation, since Positioning carries no timestamp (§4.4 Failure).
func (m *Manager) PositioningBuffer(id int64) (*buffer.InletBuffer[recordtypes.Positioning], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.positioning[id]
	if !ok {
		return nil, xerrors.UnknownInlet("unknown or wrong-kind inlet id")
	}
	return b, nil
}
