// File: api/schemas/events.go
package schemas

import (
	"encoding/json"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// EventType discriminates the telemetry events a session emits.
type EventType string

const (
	EventStatus EventType = "status"
	EventDom    EventType = "dom"
	EventFrame  EventType = "frame"
)

// Event is a single telemetry frame for one browser session. The type tag
// selects which of the optional payload fields are meaningful: status events
// carry Message (and optionally Detail), dom events carry Chars and Title,
// frame events carry File, Width and Height. Timestamp is unix milliseconds
// and is non-decreasing within a session.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"sid"`
	Timestamp int64           `json:"ts"`
	Message   string          `json:"msg,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	Chars     int             `json:"chars,omitempty"`
	Title     string          `json:"title,omitempty"`
	File      string          `json:"file,omitempty"`
	Width     int             `json:"width,omitempty"`
	Height    int             `json:"height,omitempty"`
}

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// NewStatusEvent builds a status event. A non-nil detail is serialized into
// the Detail field; serialization failures drop the detail rather than the
// event.
func NewStatusEvent(sid, msg string, detail any) Event {
	ev := Event{
		Type:      EventStatus,
		SessionID: sid,
		Timestamp: time.Now().UnixMilli(),
		Message:   msg,
	}
	if detail != nil {
		if raw, err := wireJSON.Marshal(detail); err == nil {
			ev.Detail = raw
		}
	}
	return ev
}

// NewDomEvent builds a dom event describing a snapshot of chars characters.
func NewDomEvent(sid string, chars int, title string) Event {
	return Event{
		Type:      EventDom,
		SessionID: sid,
		Timestamp: time.Now().UnixMilli(),
		Chars:     chars,
		Title:     title,
	}
}

// NewFrameEvent builds a frame event referencing a stored screenshot.
func NewFrameEvent(sid, file string, width, height int) Event {
	return Event{
		Type:      EventFrame,
		SessionID: sid,
		Timestamp: time.Now().UnixMilli(),
		File:      file,
		Width:     width,
		Height:    height,
	}
}

// Rect is an element bounding box in CSS pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// HitTestResult reports what a coordinate click landed on. A miss is a valid
// result (OK false with a Reason), not an error.
type HitTestResult struct {
	OK     bool   `json:"ok"`
	Tag    string `json:"tag,omitempty"`
	Reason string `json:"reason,omitempty"`
	Rect   *Rect  `json:"rect,omitempty"`
}
