// Package room defines the interfaces and types for real-time audio room
// connectivity.
//
// The two primary abstractions are:
//
//   - [Platform] — connects to a named room and returns a [Room].
//   - [Room] — an active room session: per-participant audio input streams,
//     a single audio output stream, an inbound data-packet channel, and
//     participant lifecycle events.
//
// Implementations are provided by transport-specific adapter packages
// (room/gateway for the websocket room gateway, room/mock for tests). The
// interfaces are intentionally narrow to keep the session controller
// decoupled from transport details.
package room

import (
	"context"
	"time"
)

// EventType classifies participant lifecycle events emitted by a [Room].
type EventType int

const (
	// EventJoin is emitted when a participant enters the room.
	EventJoin EventType = iota

	// EventLeave is emitted when a participant leaves the room.
	EventLeave
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventJoin:
		return "JOIN"
	case EventLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// Event describes a participant lifecycle change in a room.
type Event struct {
	// Type indicates whether the participant joined or left.
	Type EventType

	// Identity is the unique participant identifier within the room.
	Identity string

	// Name is the human-readable display name, when the transport carries one.
	Name string
}

// DataPacket is a structured message received over the room's data channel.
// Payloads are opaque bytes to the transport; the session controller decodes
// them as UTF-8 JSON.
type DataPacket struct {
	// Payload is the raw message body.
	Payload []byte

	// Sender is the identity of the participant that published the packet.
	Sender string
}

// AudioFrame represents a single frame of PCM audio flowing through a room.
type AudioFrame struct {
	// Data is raw little-endian 16-bit PCM.
	Data []byte

	// SampleRate in Hz (48000 on the gateway transport).
	SampleRate int

	// Channels: 1 for mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Room represents an active session in an audio room.
//
// A Room is obtained from [Platform.Connect] and remains valid until
// [Room.Disconnect] is called. All channels returned by Room methods are
// closed when the connection terminates.
//
// Implementations must be safe for concurrent use.
type Room interface {
	// Name returns the room's name.
	Name() string

	// InputStreams returns a snapshot of the current per-participant audio
	// channels, keyed by participant identity. Call again after an
	// [EventJoin] to pick up newly added streams.
	InputStreams() map[string]<-chan AudioFrame

	// OutputStream returns the write-only channel for the agent's own audio.
	// Frames written here are published to all participants. The channel is
	// buffered; the transport drops frames written after Disconnect.
	OutputStream() chan<- AudioFrame

	// Data returns the channel of inbound data packets. The channel is
	// closed when the room disconnects.
	Data() <-chan DataPacket

	// OnParticipantChange registers cb to be invoked on participant joins
	// and leaves. Only one callback may be registered at a time; subsequent
	// calls replace the previous registration. The callback runs on an
	// internal goroutine and must not block.
	OnParticipantChange(cb func(Event))

	// Disconnect tears down the connection and closes all channels.
	// Calling Disconnect more than once is safe and returns nil.
	Disconnect() error
}

// Platform is the entry point for a room transport.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins the named room and returns an active [Room]. The ctx
	// governs the connection attempt only; once connected the Room lives
	// until [Room.Disconnect].
	Connect(ctx context.Context, roomName string) (Room, error)
}
