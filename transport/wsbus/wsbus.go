// Package wsbus implements transport.Bus over WebSockets, grounded on the named-channel,
// per-connection write-queue pattern of a tunnel relay server: a channel is registered once by
// its publisher, any number of remote subscribers attach to it over HTTP, and each subscriber
// connection gets its own outbound queue and writer goroutine so one slow reader never blocks the
// others. Unlike a tunnel relay this bus trusts its callers outright (the specification's network
// layer explicitly carries no authentication) and a channel has exactly one writer.
package wsbus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gazeio/ettbuffer/internal/safego"
	"github.com/gazeio/ettbuffer/transport"
)

const outboundQueueCapacity = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Bus is an in-process registry of named outlets plus the HTTP handlers that let remote peers
// discover and subscribe to them over WebSockets.
type Bus struct {
	selfAddr string // base URL other processes use to reach this bus, e.g. "ws://host:port"

	mu       sync.RWMutex
	channels map[string]*channel
}

type channel struct {
	descriptor transport.Descriptor

	mu   sync.Mutex
	subs map[*subscriberConn]struct{}
}

// New creates a Bus. selfAddr is the base WebSocket URL ("ws://host:port") this process's
// outlets are reachable at; it is embedded into every Descriptor this Bus discovers.
func New(selfAddr string) *Bus {
	return &Bus{selfAddr: selfAddr, channels: make(map[string]*channel)}
}

// RegisterHandlers installs the discovery and streaming endpoints on mux.
func (b *Bus) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/ettbuffer/discover", b.handleDiscover)
	mux.HandleFunc("/ettbuffer/stream/", b.handleStream)
}

// Publish registers a new outlet named name. Exactly one Publisher may exist per name at a time.
func (b *Bus) Publish(name string, meta transport.Metadata) (transport.Publisher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.channels[name]; exists {
		return nil, errors.Errorf("wsbus: outlet %q already published", name)
	}
	ch := &channel{
		descriptor: transport.Descriptor{
			LogicalName: name,
			SourceID:    fmt.Sprintf("%s@%s", name, meta.Serial),
			Address:     b.selfAddr + "/ettbuffer/stream/" + name,
			Meta:        meta,
		},
		subs: make(map[*subscriberConn]struct{}),
	}
	b.channels[name] = ch
	return &publisher{bus: b, name: name, channel: ch}, nil
}

// Discover returns every published outlet, optionally filtered by stream-kind string.
func (b *Bus) Discover(streamKindFilter string) ([]transport.Descriptor, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]transport.Descriptor, 0, len(b.channels))
	for _, ch := range b.channels {
		if streamKindFilter != "" && ch.descriptor.Meta.StreamKind != streamKindFilter {
			continue
		}
		out = append(out, ch.descriptor)
	}
	return out, nil
}

// Subscribe dials the outlet named by d.Address and streams samples back over the returned
// Subscriber.
func (b *Bus) Subscribe(d transport.Descriptor) (transport.Subscriber, error) {
	conn, _, err := websocket.DefaultDialer.Dial(d.Address, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "wsbus: dial %s", d.Address)
	}
	sub := &clientSubscriber{
		conn:    conn,
		samples: make(chan transport.TimedSample, outboundQueueCapacity),
	}
	safego.Go("wsbus-subscriber-read", sub.readLoop)
	return sub, nil
}

func (b *Bus) unpublish(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.channels, name)
}

func (b *Bus) handleDiscover(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("kind")
	descriptors, _ := b.Discover(filter)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(descriptors); err != nil {
		logrus.WithError(err).Warn("wsbus: encode discover response")
	}
}

func (b *Bus) handleStream(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path[len("/ettbuffer/stream/"):]
	b.mu.RLock()
	ch, ok := b.channels[name]
	b.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("wsbus: upgrade subscriber connection")
		return
	}

	sub := &subscriberConn{conn: conn, outbound: make(chan []byte, outboundQueueCapacity)}
	ch.mu.Lock()
	ch.subs[sub] = struct{}{}
	ch.mu.Unlock()

	safego.Go("wsbus-subscriber-write", func() { sub.writeLoop() })
	safego.Go("wsbus-subscriber-detect-close", func() {
		sub.waitForClose()
		ch.mu.Lock()
		delete(ch.subs, sub)
		ch.mu.Unlock()
	})
}

// publisher is the write side of one registered channel.
type publisher struct {
	bus     *Bus
	name    string
	channel *channel
}

func (p *publisher) Push(s transport.Sample) error {
	frame := encodeFrame(s)
	p.channel.mu.Lock()
	defer p.channel.mu.Unlock()
	for sub := range p.channel.subs {
		select {
		case sub.outbound <- frame:
		default:
			// a stalled subscriber never blocks the publisher; it simply misses samples until
			// it catches up, the same trade-off wsbus's teacher pattern makes per endpoint.
		}
	}
	return nil
}

func (p *publisher) Close() error {
	p.bus.unpublish(p.name)
	p.channel.mu.Lock()
	defer p.channel.mu.Unlock()
	for sub := range p.channel.subs {
		_ = sub.conn.Close()
	}
	return nil
}

// subscriberConn is the server-side handle to one connected remote subscriber.
type subscriberConn struct {
	conn     *websocket.Conn
	outbound chan []byte
}

func (s *subscriberConn) writeLoop() {
	for frame := range s.outbound {
		if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}
	}
}

func (s *subscriberConn) waitForClose() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// clientSubscriber is the client-side handle a local Inlet Manager holds.
type clientSubscriber struct {
	conn    *websocket.Conn
	samples chan transport.TimedSample
}

func (c *clientSubscriber) Samples() <-chan transport.TimedSample { return c.samples }

func (c *clientSubscriber) Close() error {
	err := c.conn.Close()
	return err
}

func (c *clientSubscriber) readLoop() {
	defer close(c.samples)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		sample, err := decodeFrame(data)
		if err != nil {
			logrus.WithError(err).Warn("wsbus: decode frame")
			continue
		}
		c.samples <- transport.TimedSample{Sample: sample, LocalTS: time.Now().UnixMicro()}
	}
}

// encodeFrame lays out a Sample as: 8 bytes big-endian timestamp bits, then the raw payload. The
// local ingestion timestamp is stamped by the reader at read time, not carried on the wire.
func encodeFrame(s transport.Sample) []byte {
	buf := make([]byte, 8+len(s.Payload))
	binary.BigEndian.PutUint64(buf[:8], math.Float64bits(s.Timestamp))
	copy(buf[8:], s.Payload)
	return buf
}

func decodeFrame(data []byte) (transport.Sample, error) {
	if len(data) < 8 {
		return transport.Sample{}, errors.New("wsbus: frame shorter than timestamp header")
	}
	ts := math.Float64frombits(binary.BigEndian.Uint64(data[:8]))
	payload := append([]byte(nil), data[8:]...)
	return transport.Sample{Timestamp: ts, Payload: payload}, nil
}
