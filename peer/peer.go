// Package peer implements the per-server typed-state machine driven by
// the client side of a connection: Inactive, PendingStart, Active,
// PendingStop, and the transitions between them.
// The state machine is the only authority that mutates a peer's stage;
// callers drive it by polling the application (PollStart/PollStop) and
// by feeding it decoded IOStateChangeResult/audio messages.
package peer

import (
	"time"

	"github.com/netaudio/netaudio/wire"
)

// Kind identifies which of the four typed states a peer is in.
type Kind int

const (
	Inactive Kind = iota
	PendingStart
	Active
	PendingStop
)

func (k Kind) String() string {
	switch k {
	case Inactive:
		return "Inactive"
	case PendingStart:
		return "PendingStart"
	case Active:
		return "Active"
	case PendingStop:
		return "PendingStop"
	default:
		return "Kind(?)"
	}
}

// Callbacks is the application-provided handle owned by a peer's state,
// able to receive audio and observe transitions. Poll methods are
// called once per network-thread tick; On* methods notify the
// application of a completed transition.
type Callbacks interface {
	// PollStartIO reports whether the application wishes to start audio
	// I/O. Only consulted while Inactive.
	PollStartIO() bool
	// PollStopIO reports whether the application wishes to stop audio
	// I/O. Only consulted while Active.
	PollStopIO() bool
	// OnStarted is called exactly once when I/O transitions to Active.
	OnStarted()
	// OnStartRefused is called when a start request is permanently
	// refused; the peer returns to Inactive.
	OnStartRefused()
	// OnStopped is called exactly once when I/O transitions back to
	// Inactive after a successful stop.
	OnStopped()
	// OnStopRefused is called when a stop request is permanently
	// refused; the peer remains Active.
	OnStopRefused()
	// OnAudio delivers inbound audio while Active. timestamp is the
	// arrival instant recorded by the transport layer.
	OnAudio(timestamp time.Time, audio wire.AudioData)
}

// State is one peer's IO state machine.
type State struct {
	kind   Kind
	handle Callbacks
}

// New creates a peer state in Inactive, owning handle.
func New(handle Callbacks) *State {
	return &State{kind: Inactive, handle: handle}
}

// Kind returns the peer's current state.
func (s *State) Kind() Kind { return s.kind }

// PollStart polls the application for a start request while Inactive.
// It returns true if the caller should send RequestIOStateChange(Start)
// and transitions to PendingStart; otherwise the state is unchanged.
func (s *State) PollStart() bool {
	if s.kind != Inactive {
		return false
	}
	if !s.handle.PollStartIO() {
		return false
	}
	s.kind = PendingStart
	return true
}

// PollStop polls the application for a stop request while Active. It
// returns true if the caller should send RequestIOStateChange(Stop) and
// transitions to PendingStop; otherwise the state is unchanged.
func (s *State) PollStop() bool {
	if s.kind != Active {
		return false
	}
	if !s.handle.PollStopIO() {
		return false
	}
	s.kind = PendingStop
	return true
}

// HandleIOResult applies an inbound IOStateChangeResult. It returns true
// if the caller should re-send the last request (a retryable Failure),
// false otherwise — including when the result does not apply to the
// current state (logged by the caller, not faulted).
func (s *State) HandleIOResult(r wire.IOStateChangeResult) (retry bool) {
	switch r.State {
	case wire.IOStart:
		if s.kind != PendingStart {
			return false
		}
		if r.Err == nil {
			s.kind = Active
			s.handle.OnStarted()
			return false
		}
		switch *r.Err {
		case wire.ErrFailure:
			return true
		case wire.ErrRefusal:
			s.kind = Inactive
			s.handle.OnStartRefused()
			return false
		}
	case wire.IOStop:
		if s.kind != PendingStop {
			return false
		}
		if r.Err == nil {
			s.kind = Inactive
			s.handle.OnStopped()
			return false
		}
		switch *r.Err {
		case wire.ErrFailure:
			return true
		case wire.ErrRefusal:
			s.kind = Active
			s.handle.OnStopRefused()
			return false
		}
	}
	return false
}

// OnAudio forwards inbound audio to the handle if Active, and reports
// whether it did so; audio received in any other state is dropped.
func (s *State) OnAudio(timestamp time.Time, audio wire.AudioData) (delivered bool) {
	if s.kind != Active {
		return false
	}
	s.handle.OnAudio(timestamp, audio)
	return true
}
