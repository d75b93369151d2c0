package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/netaudio/netaudio/pcm"
)

// ErrUnknownMessage is returned by Decode* when a datagram does not
// decode as a valid message for the given direction. A datagram that
// fails to decode must not kill the connection: callers should log and
// drop it, not treat this as fatal.
var ErrUnknownMessage = errors.New("wire: unknown message")

// client-side flattened discriminants.
const (
	cDiscovery = iota
	cConnectionResultOk
	cConnectionResultFailure
	cConnectionResultRefusal
	cRequestStart
	cRequestStop
	cAudio
	cDisconnect
)

// server-side flattened discriminants.
const (
	sConnect = iota
	sStartOk
	sStartFailure
	sStartRefusal
	sStopOk
	sStopFailure
	sStopRefusal
	sHeartbeat
	sAudio
	sDisconnect
)

// EncodeClient appends the flattened wire encoding of msg to buf and
// returns the result.
func EncodeClient(msg ClientMessage, buf []byte) ([]byte, error) {
	switch m := msg.(type) {
	case Discovery:
		return append(buf, cDiscovery), nil
	case ConnectionResult:
		if m.Err == nil {
			return append(buf, cConnectionResultOk), nil
		}
		switch *m.Err {
		case ErrFailure:
			return append(buf, cConnectionResultFailure), nil
		case ErrRefusal:
			return append(buf, cConnectionResultRefusal), nil
		}
		return nil, fmt.Errorf("wire: invalid ErrKind %d", *m.Err)
	case RequestIOStateChange:
		switch m.State {
		case IOStart:
			return append(buf, cRequestStart), nil
		case IOStop:
			return append(buf, cRequestStop), nil
		}
		return nil, fmt.Errorf("wire: invalid IOKind %d", m.State)
	case ClientAudio:
		buf = append(buf, cAudio)
		return encodeAudio(m.Audio, buf), nil
	case ClientDisconnect:
		return append(buf, cDisconnect), nil
	default:
		return nil, fmt.Errorf("wire: unsupported client message type %T", msg)
	}
}

// DecodeClient parses a flattened client message from data. The
// returned rest is any trailing bytes after a non-audio message; for
// audio messages it is always empty, since everything after the audio
// header is taken as the raw payload.
func DecodeClient(data []byte) (msg ClientMessage, rest []byte, err error) {
	if len(data) < 1 {
		return nil, nil, ErrUnknownMessage
	}
	switch data[0] {
	case cDiscovery:
		return Discovery{}, data[1:], nil
	case cConnectionResultOk:
		return ConnectionResult{Err: OK()}, data[1:], nil
	case cConnectionResultFailure:
		return ConnectionResult{Err: Failed()}, data[1:], nil
	case cConnectionResultRefusal:
		return ConnectionResult{Err: Refused()}, data[1:], nil
	case cRequestStart:
		return RequestIOStateChange{State: IOStart}, data[1:], nil
	case cRequestStop:
		return RequestIOStateChange{State: IOStop}, data[1:], nil
	case cAudio:
		audio, rest, err := decodeAudio(data[1:])
		if err != nil {
			return nil, nil, err
		}
		return ClientAudio{Audio: audio}, rest, nil
	case cDisconnect:
		return ClientDisconnect{}, data[1:], nil
	default:
		return nil, nil, ErrUnknownMessage
	}
}

// EncodeServer appends the flattened wire encoding of msg to buf and
// returns the result.
func EncodeServer(msg ServerMessage, buf []byte) ([]byte, error) {
	switch m := msg.(type) {
	case Connect:
		buf = append(buf, sConnect)
		return encodeStreamFormats(m.Formats, buf), nil
	case IOStateChangeResult:
		tag, err := serverResultTag(m.State, m.Err)
		if err != nil {
			return nil, err
		}
		return append(buf, tag), nil
	case Heartbeat:
		return append(buf, sHeartbeat), nil
	case ServerAudio:
		buf = append(buf, sAudio)
		return encodeAudio(m.Audio, buf), nil
	case ServerDisconnect:
		return append(buf, sDisconnect), nil
	default:
		return nil, fmt.Errorf("wire: unsupported server message type %T", msg)
	}
}

func serverResultTag(state IOKind, e *ErrKind) (byte, error) {
	switch state {
	case IOStart:
		if e == nil {
			return sStartOk, nil
		}
		switch *e {
		case ErrFailure:
			return sStartFailure, nil
		case ErrRefusal:
			return sStartRefusal, nil
		}
	case IOStop:
		if e == nil {
			return sStopOk, nil
		}
		switch *e {
		case ErrFailure:
			return sStopFailure, nil
		case ErrRefusal:
			return sStopRefusal, nil
		}
	}
	return 0, fmt.Errorf("wire: invalid IOStateChangeResult{State: %v, Err: %v}", state, e)
}

// DecodeServer parses a flattened server message from data.
func DecodeServer(data []byte) (msg ServerMessage, rest []byte, err error) {
	if len(data) < 1 {
		return nil, nil, ErrUnknownMessage
	}
	switch data[0] {
	case sConnect:
		formats, rest, err := decodeStreamFormats(data[1:])
		if err != nil {
			return nil, nil, err
		}
		return Connect{Formats: formats}, rest, nil
	case sStartOk:
		return IOStateChangeResult{State: IOStart, Err: OK()}, data[1:], nil
	case sStartFailure:
		return IOStateChangeResult{State: IOStart, Err: Failed()}, data[1:], nil
	case sStartRefusal:
		return IOStateChangeResult{State: IOStart, Err: Refused()}, data[1:], nil
	case sStopOk:
		return IOStateChangeResult{State: IOStop, Err: OK()}, data[1:], nil
	case sStopFailure:
		return IOStateChangeResult{State: IOStop, Err: Failed()}, data[1:], nil
	case sStopRefusal:
		return IOStateChangeResult{State: IOStop, Err: Refused()}, data[1:], nil
	case sHeartbeat:
		return Heartbeat{}, data[1:], nil
	case sAudio:
		audio, rest, err := decodeAudio(data[1:])
		if err != nil {
			return nil, nil, err
		}
		return ServerAudio{Audio: audio}, rest, nil
	case sDisconnect:
		return ServerDisconnect{}, data[1:], nil
	default:
		return nil, nil, ErrUnknownMessage
	}
}

// encodeAudio appends stream_idx(u32) || byte_index(u64) || raw bytes.
func encodeAudio(a AudioData, buf []byte) []byte {
	var hdr [12]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(a.StreamIdx))
	binary.LittleEndian.PutUint64(hdr[4:12], a.Data.ByteIndex)
	buf = append(buf, hdr[:]...)
	buf = append(buf, a.Data.Bytes...)
	return buf
}

func decodeAudio(data []byte) (AudioData, []byte, error) {
	if len(data) < 12 {
		return AudioData{}, nil, ErrUnknownMessage
	}
	streamIdx := binary.LittleEndian.Uint32(data[0:4])
	byteIdx := binary.LittleEndian.Uint64(data[4:12])
	payload := data[12:]
	return AudioData{
		StreamIdx: int(streamIdx),
		Data:      AudioStreamData{ByteIndex: byteIdx, Bytes: payload},
	}, nil, nil
}

// formatSize is the fixed encoded width of a pcm.Format: sample rate
// (f64, 8B) + channel count (u32, 4B) + buffer size (u32, 4B) + sample
// type (u8, 1B).
const formatSize = 8 + 4 + 4 + 1

func encodeFormat(f pcm.Format, buf []byte) []byte {
	var b [formatSize]byte
	binary.LittleEndian.PutUint64(b[0:8], math.Float64bits(f.SampleRate.Hz()))
	binary.LittleEndian.PutUint32(b[8:12], uint32(f.ChannelCount))
	binary.LittleEndian.PutUint32(b[12:16], uint32(f.BufferSize))
	b[16] = byte(f.SampleType)
	return append(buf, b[:]...)
}

func decodeFormat(data []byte) (pcm.Format, []byte, error) {
	if len(data) < formatSize {
		return pcm.Format{}, nil, ErrUnknownMessage
	}
	hz := math.Float64frombits(binary.LittleEndian.Uint64(data[0:8]))
	sr, err := pcm.NewSampleRate(hz)
	if err != nil {
		return pcm.Format{}, nil, ErrUnknownMessage
	}
	channels := binary.LittleEndian.Uint32(data[8:12])
	bufSize := binary.LittleEndian.Uint32(data[12:16])
	st := pcm.SampleType(data[16])
	if st > pcm.IEEF64 {
		return pcm.Format{}, nil, ErrUnknownMessage
	}
	return pcm.Format{
		SampleRate:   sr,
		ChannelCount: pcm.ChannelCount(channels),
		BufferSize:   pcm.BufferSize(bufSize),
		SampleType:   st,
	}, data[formatSize:], nil
}

func encodeStreamFormats(sf pcm.StreamFormats, buf []byte) []byte {
	var counts [4]byte
	binary.LittleEndian.PutUint16(counts[0:2], uint16(len(sf.Inputs)))
	binary.LittleEndian.PutUint16(counts[2:4], uint16(len(sf.Outputs)))
	buf = append(buf, counts[:]...)
	for _, f := range sf.Inputs {
		buf = encodeFormat(f, buf)
	}
	for _, f := range sf.Outputs {
		buf = encodeFormat(f, buf)
	}
	return buf
}

func decodeStreamFormats(data []byte) (pcm.StreamFormats, []byte, error) {
	if len(data) < 4 {
		return pcm.StreamFormats{}, nil, ErrUnknownMessage
	}
	nIn := int(binary.LittleEndian.Uint16(data[0:2]))
	nOut := int(binary.LittleEndian.Uint16(data[2:4]))
	data = data[4:]

	inputs := make([]pcm.Format, nIn)
	for i := 0; i < nIn; i++ {
		f, rest, err := decodeFormat(data)
		if err != nil {
			return pcm.StreamFormats{}, nil, err
		}
		inputs[i] = f
		data = rest
	}
	outputs := make([]pcm.Format, nOut)
	for i := 0; i < nOut; i++ {
		f, rest, err := decodeFormat(data)
		if err != nil {
			return pcm.StreamFormats{}, nil, err
		}
		outputs[i] = f
		data = rest
	}
	return pcm.StreamFormats{Inputs: inputs, Outputs: outputs}, data, nil
}
