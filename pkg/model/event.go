package model

import "time"

// PlaybackEventType names what happened in a playback session.
type PlaybackEventType string

const (
	EventSessionStart  PlaybackEventType = "session_start"
	EventPage          PlaybackEventType = "page"
	EventFallback      PlaybackEventType = "fallback"
	EventFinished      PlaybackEventType = "finished"
	EventStopped       PlaybackEventType = "stopped"
	EventRecordStart   PlaybackEventType = "record_start"
	EventRecordSaved   PlaybackEventType = "record_saved"
	EventRecordTimeout PlaybackEventType = "record_timeout"
	EventError         PlaybackEventType = "error"
)

// PlaybackEvent is one line of the playback event log.
type PlaybackEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      PlaybackEventType `json:"type"`
	Session   uint64            `json:"session"`
	Page      int               `json:"page"`
	Summary   string            `json:"summary,omitempty"`
}
