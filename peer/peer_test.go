package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/netaudio/netaudio/wire"
)

// fakeHandle is a scripted Callbacks implementation recording every
// notification it receives, for assertions.
type fakeHandle struct {
	wantStart, wantStop                         bool
	started, startRefused, stopped, stopRefused int
	audio                                        int
}

func (h *fakeHandle) PollStartIO() bool { return h.wantStart }
func (h *fakeHandle) PollStopIO() bool  { return h.wantStop }
func (h *fakeHandle) OnStarted()        { h.started++ }
func (h *fakeHandle) OnStartRefused()   { h.startRefused++ }
func (h *fakeHandle) OnStopped()        { h.stopped++ }
func (h *fakeHandle) OnStopRefused()    { h.stopRefused++ }
func (h *fakeHandle) OnAudio(time.Time, wire.AudioData) { h.audio++ }

// Every path from Inactive either reaches Active through a Start(Ok),
// or returns to Inactive through a Refusal; Failure never changes state
// but always triggers one retry per occurrence.
func TestStateMachinePaths(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := &fakeHandle{wantStart: true}
		s := New(h)
		assert.True(t, s.PollStart())
		assert.Equal(t, PendingStart, s.Kind())

		failures := rapid.IntRange(0, 5).Draw(t, "failures")
		for i := 0; i < failures; i++ {
			retry := s.HandleIOResult(wire.IOStateChangeResult{State: wire.IOStart, Err: wire.Failed()})
			assert.True(t, retry)
			assert.Equal(t, PendingStart, s.Kind())
		}

		refuse := rapid.Bool().Draw(t, "refuse")
		if refuse {
			retry := s.HandleIOResult(wire.IOStateChangeResult{State: wire.IOStart, Err: wire.Refused()})
			assert.False(t, retry)
			assert.Equal(t, Inactive, s.Kind())
			assert.Equal(t, 1, h.startRefused)
		} else {
			retry := s.HandleIOResult(wire.IOStateChangeResult{State: wire.IOStart, Err: wire.OK()})
			assert.False(t, retry)
			assert.Equal(t, Active, s.Kind())
			assert.Equal(t, 1, h.started)
		}
	})
}

func TestInactiveDropsAudio(t *testing.T) {
	h := &fakeHandle{}
	s := New(h)
	delivered := s.OnAudio(time.Now(), wire.AudioData{})
	assert.False(t, delivered)
	assert.Equal(t, 0, h.audio)
}

// Scenario S2: start IO succeeds on the first try.
func TestScenarioS2StartIO(t *testing.T) {
	h := &fakeHandle{wantStart: true}
	s := New(h)
	assert.True(t, s.PollStart())

	retry := s.HandleIOResult(wire.IOStateChangeResult{State: wire.IOStart, Err: wire.OK()})
	assert.False(t, retry)
	assert.Equal(t, Active, s.Kind())
	assert.Equal(t, 1, h.started)
}

// Scenario S3: a transient failure keeps the state pending and
// triggers exactly one retry, then success reaches Active.
func TestScenarioS3FailureThenSuccess(t *testing.T) {
	h := &fakeHandle{wantStart: true}
	s := New(h)
	s.PollStart()

	retry := s.HandleIOResult(wire.IOStateChangeResult{State: wire.IOStart, Err: wire.Failed()})
	assert.True(t, retry)
	assert.Equal(t, PendingStart, s.Kind())

	retry = s.HandleIOResult(wire.IOStateChangeResult{State: wire.IOStart, Err: wire.OK()})
	assert.False(t, retry)
	assert.Equal(t, Active, s.Kind())
	assert.Equal(t, 1, h.started)
}

func TestActiveToPendingStopRefusalRevertsToActive(t *testing.T) {
	h := &fakeHandle{wantStart: true}
	s := New(h)
	s.PollStart()
	s.HandleIOResult(wire.IOStateChangeResult{State: wire.IOStart, Err: wire.OK()})

	h.wantStop = true
	assert.True(t, s.PollStop())
	assert.Equal(t, PendingStop, s.Kind())

	retry := s.HandleIOResult(wire.IOStateChangeResult{State: wire.IOStop, Err: wire.Refused()})
	assert.False(t, retry)
	assert.Equal(t, Active, s.Kind())
	assert.Equal(t, 1, h.stopRefused)
}

func TestHeartbeatDoesNotMutateKind(t *testing.T) {
	h := &fakeHandle{}
	s := New(h)
	before := s.Kind()
	// Heartbeat has no state-machine event in `peer`; it is handled by the
	// registry as a deadline refresh only, leaving kind unchanged.
	assert.Equal(t, before, s.Kind())
}
