// Package apptest holds in-memory doubles of the media and signaling contracts.
package apptest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/dkeye/Broadcast/internal/protocol"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

var (
	ErrNoRemoteDescription = errors.New("remote description not set")
	ErrConnClosed          = errors.New("connection closed")
)

// Connection records every call made on it. AddICECandidate fails until a
// remote description is set, as a real peer connection does.
type Connection struct {
	ID domain.PeerID

	mu         sync.Mutex
	tracks     []webrtc.TrackLocal
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []string
	closed     bool
	closedCh   chan struct{}
	seq        int

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.RemoteTrack)
	onState func(webrtc.PeerConnectionState)

	// Failure injection, set before use.
	OfferErr  error
	AnswerErr error
	RemoteErr error
	// RemoteGate, when set, holds SetRemoteDescription until it is closed or the connection is.
	RemoteGate chan struct{}
	// CloseGate, when set, holds Close until it is closed.
	CloseGate chan struct{}
}

func NewConnection(id domain.PeerID) *Connection {
	return &Connection{ID: id, closedCh: make(chan struct{})}
}

func (c *Connection) AddLocalTrack(t webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.tracks = append(c.tracks, t)
	return nil
}

func (c *Connection) GenerateOffer() (webrtc.SessionDescription, error) {
	return c.generate(webrtc.SDPTypeOffer, c.OfferErr)
}

func (c *Connection) GenerateAnswer() (webrtc.SessionDescription, error) {
	return c.generate(webrtc.SDPTypeAnswer, c.AnswerErr)
}

func (c *Connection) generate(t webrtc.SDPType, failure error) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if failure != nil {
		return webrtc.SessionDescription{}, failure
	}
	if c.closed {
		return webrtc.SessionDescription{}, ErrConnClosed
	}
	c.seq++
	return webrtc.SessionDescription{Type: t, SDP: fmt.Sprintf("%s-%s-%d", t, c.ID, c.seq)}, nil
}

func (c *Connection) SetLocalDescription(d webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.local = &d
	return nil
}

func (c *Connection) SetRemoteDescription(d webrtc.SessionDescription) error {
	if c.RemoteGate != nil {
		select {
		case <-c.RemoteGate:
		case <-c.closedCh:
			return ErrConnClosed
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RemoteErr != nil {
		return c.RemoteErr
	}
	if c.closed {
		return ErrConnClosed
	}
	c.remote = &d
	return nil
}

func (c *Connection) AddICECandidate(cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.remote == nil {
		return ErrNoRemoteDescription
	}
	c.candidates = append(c.candidates, cand.Candidate)
	return nil
}

func (c *Connection) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = f
	c.mu.Unlock()
}

func (c *Connection) OnTrack(f func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = f
	c.mu.Unlock()
}

func (c *Connection) OnStateChange(f func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = f
	c.mu.Unlock()
}

func (c *Connection) Close() error {
	if c.CloseGate != nil {
		<-c.CloseGate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}
	return nil
}

// GatherCandidate fires the local candidate callback.
func (c *Connection) GatherCandidate(cand string) {
	c.mu.Lock()
	f := c.onICE
	c.mu.Unlock()
	if f != nil {
		f(webrtc.ICECandidateInit{Candidate: cand})
	}
}

// DeliverTrack fires the remote track callback.
func (c *Connection) DeliverTrack(t core.RemoteTrack) {
	c.mu.Lock()
	f := c.onTrack
	c.mu.Unlock()
	if f != nil {
		f(t)
	}
}

// SetState fires the connection state callback.
func (c *Connection) SetState(st webrtc.PeerConnectionState) {
	c.mu.Lock()
	f := c.onState
	c.mu.Unlock()
	if f != nil {
		f(st)
	}
}

func (c *Connection) Tracks() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), c.tracks...)
}

func (c *Connection) Local() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Connection) Remote() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// Candidates returns the applied remote candidates in order.
func (c *Connection) Candidates() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.candidates...)
}

func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Transport hands out Connections and remembers them per identity.
type Transport struct {
	mu    sync.Mutex
	conns map[domain.PeerID][]*Connection
	// Prepare, if set, configures each new connection before it is returned.
	Prepare func(*Connection)
	Err     error
}

func NewTransport() *Transport {
	return &Transport{conns: make(map[domain.PeerID][]*Connection)}
}

func (t *Transport) NewConnection(id domain.PeerID) (core.MediaConnection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	c := NewConnection(id)
	if t.Prepare != nil {
		t.Prepare(c)
	}
	t.conns[id] = append(t.conns[id], c)
	return c, nil
}

// Conns returns every connection created for id, oldest first.
func (t *Transport) Conns(id domain.PeerID) []*Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Connection(nil), t.conns[id]...)
}

// Last returns the newest connection for id.
func (t *Transport) Last(id domain.PeerID) *Connection {
	conns := t.Conns(id)
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

func (t *Transport) All() []*Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Connection
	for _, cs := range t.conns {
		out = append(out, cs...)
	}
	return out
}

// Channel records sent messages.
type Channel struct {
	mu      sync.Mutex
	sent    []protocol.Message
	closed  bool
	SendErr error
}

func (c *Channel) Send(m protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	if c.closed {
		return ErrConnClosed
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Channel) Sent() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.sent...)
}

// SentOf returns the sent messages of kind k addressed to id.
func (c *Channel) SentOf(k protocol.Kind, id domain.PeerID) []protocol.Message {
	var out []protocol.Message
	for _, m := range c.Sent() {
		if m.Type == k && m.PeerID == id {
			out = append(out, m)
		}
	}
	return out
}

func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Source is a media source backed by real static tracks.
type Source struct {
	mu       sync.Mutex
	tracks   []*webrtc.TrackLocalStaticRTP
	enabled  map[webrtc.RTPCodecType]bool
	released int
}

func NewSource() *Source {
	video, _ := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "broadcast")
	audio, _ := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "broadcast")
	return &Source{
		tracks: []*webrtc.TrackLocalStaticRTP{video, audio},
		enabled: map[webrtc.RTPCodecType]bool{
			webrtc.RTPCodecTypeVideo: true,
			webrtc.RTPCodecTypeAudio: true,
		},
	}
}

func (s *Source) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *Source) SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enabled[kind]; !ok {
		return false
	}
	s.enabled[kind] = enabled
	return true
}

func (s *Source) TrackEnabled(kind webrtc.RTPCodecType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[kind]
}

func (s *Source) Release() {
	s.mu.Lock()
	s.released++
	s.mu.Unlock()
}

func (s *Source) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Acquirer returns Src or Err.
type Acquirer struct {
	Src *Source
	Err error
}

func (a Acquirer) Acquire(_ context.Context, _ domain.Constraints) (core.MediaSource, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Src, nil
}

// RemoteTrack blocks in ReadRTP until Stop is called.
type RemoteTrack struct {
	TrackID string
	Type    webrtc.RTPCodecType
	once    sync.Once
	done    chan struct{}
}

func NewRemoteTrack(id string, kind webrtc.RTPCodecType) *RemoteTrack {
	return &RemoteTrack{TrackID: id, Type: kind, done: make(chan struct{})}
}

func (t *RemoteTrack) ID() string                { return t.TrackID }
func (t *RemoteTrack) StreamID() string          { return "broadcast" }
func (t *RemoteTrack) Kind() webrtc.RTPCodecType { return t.Type }

func (t *RemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	<-t.done
	return nil, nil, io.EOF
}

func (t *RemoteTrack) Stop() { t.once.Do(func() { close(t.done) }) }

// PublisherSurface records viewer counts and fatal errors.
type PublisherSurface struct {
	mu     sync.Mutex
	counts []int
	errs   []error
}

func (s *PublisherSurface) ViewerCountChanged(n int) {
	s.mu.Lock()
	s.counts = append(s.counts, n)
	s.mu.Unlock()
}

func (s *PublisherSurface) Fatal(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *PublisherSurface) Counts() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.counts...)
}

func (s *PublisherSurface) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

// ViewerSurface records status changes and attached tracks.
type ViewerSurface struct {
	mu       sync.Mutex
	statuses []domain.ViewerStatus
	tracks   []core.RemoteTrack
	detached int
	muted    []bool
	errs     []error
}

func (s *ViewerSurface) StatusChanged(st domain.ViewerStatus) {
	s.mu.Lock()
	s.statuses = append(s.statuses, st)
	s.mu.Unlock()
}

func (s *ViewerSurface) AttachTrack(t core.RemoteTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *ViewerSurface) DetachAll() {
	s.mu.Lock()
	s.tracks = nil
	s.detached++
	s.mu.Unlock()
}

func (s *ViewerSurface) SetMuted(m bool) {
	s.mu.Lock()
	s.muted = append(s.muted, m)
	s.mu.Unlock()
}

func (s *ViewerSurface) Fatal(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *ViewerSurface) Statuses() []domain.ViewerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ViewerStatus(nil), s.statuses...)
}

func (s *ViewerSurface) Attached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

func (s *ViewerSurface) Detached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detached
}

func (s *ViewerSurface) Muted() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.muted...)
}

func (s *ViewerSurface) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}
