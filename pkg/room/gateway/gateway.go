// Package gateway implements room.Platform for the Coral room gateway.
//
// The gateway is the platform's websocket front door to its real-time rooms:
// one socket per room carries JSON text frames for signaling (participant
// joins and leaves, data-channel packets, job dispatch) and binary frames for
// Opus audio. The worker subscribes to audio and data only — video tracks
// never reach this process.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/coral-ai/proctor/pkg/room"
)

// Compile-time interface checks.
var (
	_ room.Platform = (*Platform)(nil)
	_ room.Room     = (*Conn)(nil)
)

const (
	// outputBuffer is the depth of the agent audio output channel: 1 s of
	// 20 ms frames, enough to absorb TTS burstiness without blocking.
	outputBuffer = 50

	// inputBuffer is the per-participant inbound frame channel depth.
	inputBuffer = 256

	// dataBuffer is the inbound data packet channel depth. Exam control
	// messages arrive at human pace; anything deeper hides a stuck consumer.
	dataBuffer = 16
)

// Option is a functional option for configuring a Platform.
type Option func(*Platform)

// WithIdentity sets the agent's own participant identity. Default "proctor".
func WithIdentity(identity string) Option {
	return func(p *Platform) { p.identity = identity }
}

// WithDialTimeout bounds the websocket dial. Default 10 s.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Platform) { p.dialTimeout = d }
}

// Platform connects to rooms served by a Coral room gateway.
type Platform struct {
	baseURL     string
	token       string
	identity    string
	dialTimeout time.Duration
}

// New creates a Platform for the gateway at baseURL (e.g. "wss://gw.example.com").
// token authenticates the worker as a room agent.
func New(baseURL, token string, opts ...Option) (*Platform, error) {
	if baseURL == "" {
		return nil, errors.New("gateway: baseURL must not be empty")
	}
	p := &Platform{
		baseURL:     baseURL,
		token:       token,
		identity:    "proctor",
		dialTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Connect implements room.Platform. It dials the gateway's room endpoint and
// starts the read and write loops.
func (p *Platform) Connect(ctx context.Context, roomName string) (room.Room, error) {
	u, err := url.JoinPath(p.baseURL, "rooms", roomName)
	if err != nil {
		return nil, fmt.Errorf("gateway: build room url: %w", err)
	}
	u += "?identity=" + url.QueryEscape(p.identity) + "&subscribe=audio"

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	headers := http.Header{}
	if p.token != "" {
		headers.Set("Authorization", "Bearer "+p.token)
	}

	ws, _, err := websocket.Dial(dialCtx, u, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("gateway: dial room %q: %w", roomName, err)
	}
	// Audio frames are large relative to the default limit.
	ws.SetReadLimit(1 << 20)

	enc, err := newOpusEncoder()
	if err != nil {
		ws.Close(websocket.StatusInternalError, "codec init failed")
		return nil, err
	}

	c := &Conn{
		name:     roomName,
		ws:       ws,
		enc:      enc,
		inputs:   make(map[string]*participant),
		data:     make(chan room.DataPacket, dataBuffer),
		out:      make(chan room.AudioFrame, outputBuffer),
		done:     make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()

	slog.Info("connected to room", "room", roomName, "identity", p.identity)
	return c, nil
}

// envelope is the JSON structure of gateway text frames.
type envelope struct {
	Type     string `json:"type"`
	Identity string `json:"identity,omitempty"`
	Name     string `json:"name,omitempty"`
	Sender   string `json:"sender,omitempty"`
	Payload  []byte `json:"payload,omitempty"`
	Room     string `json:"room,omitempty"`
}

// Gateway envelope types.
const (
	typeParticipantJoined = "participant_joined"
	typeParticipantLeft   = "participant_left"
	typeData              = "data"
	typeJob               = "job"
)

// participant tracks one remote participant's inbound audio stream. Each
// participant keeps its own Opus decoder so decoder state stays correct
// across consecutive frames.
type participant struct {
	frames chan room.AudioFrame
	dec    *opusDecoder
	joined time.Time
}

// Conn is an active gateway room connection. It implements room.Room.
type Conn struct {
	name string
	ws   *websocket.Conn
	enc  *opusEncoder

	mu     sync.Mutex
	inputs map[string]*participant
	cb     func(room.Event)

	data chan room.DataPacket
	out  chan room.AudioFrame

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Name implements room.Room.
func (c *Conn) Name() string { return c.name }

// InputStreams implements room.Room.
func (c *Conn) InputStreams() map[string]<-chan room.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := make(map[string]<-chan room.AudioFrame, len(c.inputs))
	for id, p := range c.inputs {
		snap[id] = p.frames
	}
	return snap
}

// OutputStream implements room.Room.
func (c *Conn) OutputStream() chan<- room.AudioFrame { return c.out }

// Data implements room.Room.
func (c *Conn) Data() <-chan room.DataPacket { return c.data }

// OnParticipantChange implements room.Room.
func (c *Conn) OnParticipantChange(cb func(room.Event)) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

// Disconnect implements room.Room.
func (c *Conn) Disconnect() error {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close(websocket.StatusNormalClosure, "session ended")
		c.wg.Wait()

		c.mu.Lock()
		for _, p := range c.inputs {
			close(p.frames)
		}
		c.inputs = map[string]*participant{}
		c.mu.Unlock()
		close(c.data)
	})
	return nil
}

// readLoop receives gateway frames: text frames carry signaling envelopes,
// binary frames carry identity-prefixed Opus packets.
func (c *Conn) readLoop() {
	defer c.wg.Done()

	start := time.Now()
	for {
		typ, msg, err := c.ws.Read(context.Background())
		if err != nil {
			// Normal close or network loss — tear down once.
			go c.Disconnect()
			return
		}

		switch typ {
		case websocket.MessageText:
			c.handleEnvelope(msg)
		case websocket.MessageBinary:
			c.handleAudio(msg, time.Since(start))
		}
	}
}

// handleEnvelope dispatches one signaling frame.
func (c *Conn) handleEnvelope(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		slog.Warn("gateway: bad signaling frame", "err", err)
		return
	}

	switch env.Type {
	case typeParticipantJoined:
		c.addParticipant(env.Identity, env.Name)
	case typeParticipantLeft:
		c.removeParticipant(env.Identity)
	case typeData:
		select {
		case c.data <- room.DataPacket{Sender: env.Sender, Payload: env.Payload}:
		case <-c.done:
		default:
			slog.Warn("gateway: data channel full, packet dropped", "room", c.name)
		}
	default:
		slog.Debug("gateway: unhandled envelope", "type", env.Type)
	}
}

// handleAudio decodes one identity-prefixed Opus packet and forwards the PCM
// frame to that participant's input stream. Frame layout: one length byte,
// the identity bytes, then the Opus packet.
func (c *Conn) handleAudio(msg []byte, ts time.Duration) {
	if len(msg) < 2 {
		return
	}
	idLen := int(msg[0])
	if len(msg) < 1+idLen+1 {
		return
	}
	identity := string(msg[1 : 1+idLen])
	packet := msg[1+idLen:]

	c.mu.Lock()
	p, ok := c.inputs[identity]
	c.mu.Unlock()
	if !ok {
		// Audio can race the join envelope; register the participant now.
		p = c.addParticipant(identity, "")
		if p == nil {
			return
		}
	}

	pcm, err := p.dec.decode(packet)
	if err != nil {
		slog.Warn("gateway: opus decode failed", "participant", identity, "err", err)
		return
	}

	frame := room.AudioFrame{
		Data:       pcm,
		SampleRate: opusSampleRate,
		Channels:   opusChannels,
		Timestamp:  ts,
	}
	select {
	case p.frames <- frame:
	default:
		// Consumer is behind; drop rather than stall the socket reader.
	}
}

// writeLoop encodes agent audio frames to Opus and sends them as binary frames.
func (c *Conn) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case frame := <-c.out:
			packet, err := c.enc.encode(frame.Data)
			if err != nil {
				slog.Warn("gateway: opus encode failed", "err", err)
				continue
			}
			if err := c.ws.Write(context.Background(), websocket.MessageBinary, packet); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// addParticipant registers a new remote participant and fires the join callback.
func (c *Conn) addParticipant(identity, name string) *participant {
	dec, err := newOpusDecoder()
	if err != nil {
		slog.Error("gateway: create opus decoder", "participant", identity, "err", err)
		return nil
	}

	c.mu.Lock()
	if existing, ok := c.inputs[identity]; ok {
		c.mu.Unlock()
		return existing
	}
	p := &participant{
		frames: make(chan room.AudioFrame, inputBuffer),
		dec:    dec,
		joined: time.Now(),
	}
	c.inputs[identity] = p
	cb := c.cb
	c.mu.Unlock()

	slog.Info("participant joined", "room", c.name, "identity", identity)
	if cb != nil {
		cb(room.Event{Type: room.EventJoin, Identity: identity, Name: name})
	}
	return p
}

// removeParticipant closes the participant's stream and fires the leave callback.
func (c *Conn) removeParticipant(identity string) {
	c.mu.Lock()
	p, ok := c.inputs[identity]
	if ok {
		delete(c.inputs, identity)
	}
	cb := c.cb
	c.mu.Unlock()
	if !ok {
		return
	}

	close(p.frames)
	slog.Info("participant left", "room", c.name, "identity", identity)
	if cb != nil {
		cb(room.Event{Type: room.EventLeave, Identity: identity})
	}
}
