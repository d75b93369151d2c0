package wire

import "time"

const (
	// ConnTimeout is how long either side of a connection may go
	// without a deadline-refreshing message from its peer before the
	// peer is considered gone.
	ConnTimeout = 600 * time.Millisecond
	// RequestPollPeriod is the recommended interval at which a network
	// thread should poll its application for start/stop IO requests.
	RequestPollPeriod = 10 * time.Millisecond
	// HeartbeatPeriod is the recommended interval at which a server
	// sends Heartbeat to each connected client, comfortably inside
	// ConnTimeout.
	HeartbeatPeriod = ConnTimeout / 3
	// EncodeBufLen is the scratch capacity reserved for outbound
	// message encoding.
	EncodeBufLen = 2000
)
