package event

import "time"

const (
	EventPairOpen  = "pair.open"
	EventPairClose = "pair.close"
	EventDialFail  = "dial.fail"
)

// PairOpenEvent is published once the outbound leg is connected and both
// pumps are about to start.
type PairOpenEvent struct {
	ID     uint64
	Client string
	Target string
}

// PairCloseEvent is published after both pumps of a pair have returned.
// Sent counts client to target bytes, Received the reverse.
type PairCloseEvent struct {
	ID       uint64
	Client   string
	Sent     int64
	Received int64
	Duration time.Duration
}

type DialFailEvent struct {
	Client string
	Target string
	Err    error
}
