package model

import "time"

// Event types written to the event log.
const (
	EventStarted  = "started"
	EventFinished = "finished"
	EventError    = "error"
	EventMute     = "mute"
	EventUnmute   = "unmute"
	EventOffRoute = "off_route"
	EventShutdown = "shutdown"
)

// Event is a single line in the event log.
type Event struct {
	Timestamp time.Time
	Type      string
	Title     string
	Summary   string
}
