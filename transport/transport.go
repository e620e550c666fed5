// Package transport declares the boundary this layer shares with the network transport library
// (specification §1): treated as an external collaborator providing named, multi-channel outlets
// and inlets with per-sample timestamps. The Outlet and Inlet Managers depend only on these
// interfaces; transport/wsbus provides one concrete, testable implementation over WebSockets.
package transport

// Sample is one timestamped, already-encoded record crossing the network boundary. Timestamp is
// seconds as a 64-bit float (the record's system_ts converted from microseconds, per §6); Payload
// is the stream kind's fixed channel layout already serialized by the Outlet/Inlet Manager.
type Sample struct {
	Timestamp float64
	Payload   []byte
}

// Metadata is attached to an outlet at open time (§4.3) and surfaced to inlets via Discover.
type Metadata struct {
	Manufacturer  string
	Model         string
	Serial        string
	Firmware      string
	TrackingMode  string
	StreamKind    string
	ChannelCount  int
	ChannelFormat string // "f32", "i64", "VideoRaw", or "VideoCompressed"
}

// Descriptor identifies one outlet visible for discovery: LogicalName is "Tracker_<StreamName>",
// SourceID is "Tracker_<StreamName>@<device_serial>" (§4.3). Address is opaque outside the Bus
// implementation that produced it (wsbus uses it to hold the outlet's dial URL).
type Descriptor struct {
	LogicalName string
	SourceID    string
	Address     string
	Meta        Metadata
}

// Publisher is the write side of one outlet. Push delivers one sample to every subscriber
// currently attached; it never blocks on a slow subscriber beyond the underlying transport's own
// buffering.
type Publisher interface {
	Push(Sample) error
	Close() error
}

// Subscriber is the read side of one inlet. Samples yields every sample pushed by the remote
// outlet, each tagged by the transport with the local ingestion time by the time it is read off
// the channel.
type Subscriber interface {
	Samples() <-chan TimedSample
	Close() error
}

// TimedSample pairs a received Sample with the local wall-clock time (microseconds) it was
// ingested, matching the InletBuffer's local_ts/remote_ts pair (§3).
type TimedSample struct {
	Sample  Sample
	LocalTS int64
}

// Bus is the full transport surface: publish new outlets, discover what's published, subscribe to
// a discovered outlet.
type Bus interface {
	Publish(name string, meta Metadata) (Publisher, error)
	Discover(streamKindFilter string) ([]Descriptor, error)
	Subscribe(d Descriptor) (Subscriber, error)
}
