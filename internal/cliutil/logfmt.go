package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	forkrt "github.com/Paintersrp/forkrun/internal/runtime"
)

// LogRecord represents a structured runtime event ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	Event     string    `json:"event"`
	Ordinal   int       `json:"ordinal"`
	Pid       int       `json:"pid,omitempty"`
	Status    *int      `json:"status,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"msg,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NewLogRecord converts a runtime event into a structured log record.
func NewLogRecord(event forkrt.Event) LogRecord {
	record := LogRecord{
		Timestamp: event.Timestamp,
		Event:     string(event.Type),
		Ordinal:   event.Ordinal,
		Pid:       event.Pid,
		Level:     eventLevel(event),
		Message:   RedactSecrets(event.Message),
	}
	switch event.Type {
	case forkrt.EventTypeExited, forkrt.EventTypeFailed, forkrt.EventTypeLost, forkrt.EventTypeTerminating:
		status := event.Status
		record.Status = &status
	}
	if event.Err != nil {
		record.Error = RedactSecrets(event.Err.Error())
	}
	return record
}

func eventLevel(event forkrt.Event) string {
	switch {
	case event.Type == forkrt.EventTypeFailed, event.Type == forkrt.EventTypeError:
		return "error"
	case event.Type == forkrt.EventTypeReplaced, event.Type == forkrt.EventTypeLost, event.Err != nil:
		return "warn"
	default:
		return "info"
	}
}

// EncodeLogEvent encodes a runtime event to JSON, reporting errors to stderr if needed.
func EncodeLogEvent(enc *json.Encoder, stderr io.Writer, event forkrt.Event) {
	if enc == nil {
		return
	}
	record := NewLogRecord(event)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}

// FormatEvent renders a runtime event as a single human readable line.
func FormatEvent(event forkrt.Event) string {
	record := NewLogRecord(event)
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("%s %-5s [%d] %s", ts.Format("15:04:05.000"), record.Level, record.Ordinal, record.Event)
	if record.Pid > 0 {
		line += fmt.Sprintf(" pid=%d", record.Pid)
	}
	if record.Status != nil {
		line += fmt.Sprintf(" status=%d", *record.Status)
	}
	if record.Message != "" {
		line += " " + record.Message
	}
	if record.Error != "" {
		line += " error=" + record.Error
	}
	return line
}
