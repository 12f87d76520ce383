// Package mock provides a scriptable room.Room and room.Platform for tests.
package mock

import (
	"context"
	"sync"

	"github.com/coral-ai/proctor/pkg/room"
)

// Compile-time interface checks.
var (
	_ room.Room     = (*Room)(nil)
	_ room.Platform = (*Platform)(nil)
)

// Room is a scriptable in-memory room. Tests push inbound packets with
// [Room.PushData], add participants with [Room.AddParticipant], and read
// published audio from [Room.Published].
type Room struct {
	RoomName string

	mu           sync.Mutex
	inputs       map[string]chan room.AudioFrame
	data         chan room.DataPacket
	out          chan room.AudioFrame
	cb           func(room.Event)
	disconnected bool
}

// NewRoom returns a Room with buffered channels ready for scripting.
func NewRoom(name string) *Room {
	return &Room{
		RoomName: name,
		inputs:   make(map[string]chan room.AudioFrame),
		data:     make(chan room.DataPacket, 16),
		out:      make(chan room.AudioFrame, 256),
	}
}

// Name implements room.Room.
func (r *Room) Name() string { return r.RoomName }

// InputStreams implements room.Room.
func (r *Room) InputStreams() map[string]<-chan room.AudioFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[string]<-chan room.AudioFrame, len(r.inputs))
	for id, ch := range r.inputs {
		snap[id] = ch
	}
	return snap
}

// OutputStream implements room.Room.
func (r *Room) OutputStream() chan<- room.AudioFrame { return r.out }

// Data implements room.Room.
func (r *Room) Data() <-chan room.DataPacket { return r.data }

// OnParticipantChange implements room.Room.
func (r *Room) OnParticipantChange(cb func(room.Event)) {
	r.mu.Lock()
	r.cb = cb
	r.mu.Unlock()
}

// Disconnect implements room.Room.
func (r *Room) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disconnected {
		return nil
	}
	r.disconnected = true
	close(r.data)
	for _, ch := range r.inputs {
		close(ch)
	}
	return nil
}

// AddParticipant registers a participant, fires the join event, and returns
// the channel tests write that participant's audio into.
func (r *Room) AddParticipant(identity, name string) chan<- room.AudioFrame {
	r.mu.Lock()
	ch := make(chan room.AudioFrame, 256)
	r.inputs[identity] = ch
	cb := r.cb
	r.mu.Unlock()

	if cb != nil {
		cb(room.Event{Type: room.EventJoin, Identity: identity, Name: name})
	}
	return ch
}

// PushData delivers a data packet to the room's data channel.
func (r *Room) PushData(sender string, payload []byte) {
	r.data <- room.DataPacket{Sender: sender, Payload: payload}
}

// Published returns the channel of audio frames the agent has written.
func (r *Room) Published() <-chan room.AudioFrame { return r.out }

// Platform hands out a fixed Room on Connect.
type Platform struct {
	// RoomToReturn is returned by every Connect call. When nil, a fresh
	// Room named after the request is created.
	RoomToReturn *Room

	// ConnectErr, when non-nil, is returned by Connect.
	ConnectErr error
}

// Connect implements room.Platform.
func (p *Platform) Connect(_ context.Context, roomName string) (room.Room, error) {
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.RoomToReturn != nil {
		return p.RoomToReturn, nil
	}
	return NewRoom(roomName), nil
}
