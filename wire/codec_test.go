package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netaudio/netaudio/pcm"
)

func TestEncodeDecodeClientMessages(t *testing.T) {
	cases := []ClientMessage{
		Discovery{},
		ConnectionResult{Err: OK()},
		ConnectionResult{Err: Failed()},
		ConnectionResult{Err: Refused()},
		RequestIOStateChange{State: IOStart},
		RequestIOStateChange{State: IOStop},
		ClientAudio{Audio: AudioData{StreamIdx: 3, Data: AudioStreamData{ByteIndex: 77, Bytes: []byte{1, 2, 3}}}},
		ClientDisconnect{},
	}
	for _, msg := range cases {
		buf, err := EncodeClient(msg, nil)
		assert.NoError(t, err)
		got, rest, err := DecodeClient(buf)
		assert.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, msg, got)
	}
}

func TestEncodeDecodeServerMessages(t *testing.T) {
	formats := pcm.StreamFormats{
		Inputs:  []pcm.Format{{SampleRate: pcm.MustSampleRate(44100), ChannelCount: 1, BufferSize: 64, SampleType: pcm.I16}},
		Outputs: []pcm.Format{{SampleRate: pcm.MustSampleRate(48000), ChannelCount: 2, BufferSize: 32, SampleType: pcm.IEEF32}},
	}
	cases := []ServerMessage{
		Connect{Formats: formats},
		IOStateChangeResult{State: IOStart, Err: OK()},
		IOStateChangeResult{State: IOStart, Err: Failed()},
		IOStateChangeResult{State: IOStop, Err: Refused()},
		Heartbeat{},
		ServerAudio{Audio: AudioData{StreamIdx: 0, Data: AudioStreamData{ByteIndex: 0, Bytes: []byte{9, 9}}}},
		ServerDisconnect{},
	}
	for _, msg := range cases {
		buf, err := EncodeServer(msg, nil)
		assert.NoError(t, err)
		got, rest, err := DecodeServer(buf)
		assert.NoError(t, err)
		assert.Empty(t, rest)
		assert.Equal(t, msg, got)
	}
}

func TestDecodeUnknownMessageDoesNotPanic(t *testing.T) {
	_, _, err := DecodeClient(nil)
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, _, err = DecodeClient([]byte{0xFF})
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, _, err = DecodeServer([]byte{0xFF})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestDiscriminantIsSingleByteForControlMessages(t *testing.T) {
	buf, err := EncodeClient(RequestIOStateChange{State: IOStart}, nil)
	assert.NoError(t, err)
	assert.Len(t, buf, 1)

	buf, err = EncodeServer(Heartbeat{}, nil)
	assert.NoError(t, err)
	assert.Len(t, buf, 1)
}
