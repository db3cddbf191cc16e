// Package report writes the primary event stream: one line per reported
// event, in plain text or RFC 4180 CSV, each timestamped by a configurable
// formatter. Diagnostics go through gologger instead; this stream is the
// machine-consumable output of a run.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Event identifies something worth a line on the output stream.
type Event int

const (
	EventTX      Event = iota // packet sent
	EventRX                   // packet received
	EventUp                   // packet received while down
	EventDown                 // receive timeout expired
	EventCommand              // command received and handled
	EventNote                 // informational note
)

// keyword is the CSV field, phrase the human readable lead-in.
func (e Event) keyword() string {
	switch e {
	case EventTX:
		return "sent"
	case EventRX:
		return "recv"
	case EventUp:
		return "up"
	case EventDown:
		return "down"
	case EventCommand:
		return "command"
	default:
		return "note"
	}
}

func (e Event) phrase() string {
	switch e {
	case EventTX:
		return "sent packet to"
	case EventRX:
		return "received packet on"
	case EventUp:
		return "started receiving packets on"
	case EventDown:
		return "no longer receiving packets on"
	case EventCommand:
		return "received command for"
	default:
		return "note:"
	}
}

// TimeFormat selects how event timestamps are rendered.
type TimeFormat int

const (
	TimeLog  TimeFormat = iota // Sep 12 00:01:17.123
	TimeRaw                    // 1599943404.456
	TimeNum                    // 2020-09-12-13:46:43.789
	TimeNone                   // no timestamp
)

// Render formats t according to the selected format; empty for TimeNone.
func (f TimeFormat) Render(t time.Time) string {
	switch f {
	case TimeRaw:
		return fmt.Sprintf("%d.%03d", t.Unix(), t.Nanosecond()/1e6)
	case TimeNum:
		return t.Format("2006-01-02-15:04:05.000")
	case TimeNone:
		return ""
	default:
		return t.Format("Jan 02 15:04:05.000")
	}
}

// Format holds the output formatting settings carried in the session
// configuration, replacing any process-global formatter state.
type Format struct {
	CSV   bool
	Time  TimeFormat
	Label string
}

// Emitter writes event lines to a single output stream.
type Emitter struct {
	w   io.Writer
	now func() time.Time
}

func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w, now: time.Now}
}

// Emit writes one event line, applying the verbosity gating: tx/rx are
// reported only in verbose mode, up/down transitions are suppressed at
// verbosity one (the per-packet lines already show the state), and
// command/note lines are always reported.
func (e *Emitter) Emit(f Format, verbose int, evt Event, extra string) {
	switch evt {
	case EventTX, EventRX:
		if verbose == 0 {
			return
		}
	case EventUp, EventDown:
		if verbose == 1 {
			return
		}
	}

	ts := f.Time.Render(e.now())
	if f.CSV {
		sep := ""
		if ts != "" {
			sep = ","
		}
		fmt.Fprintf(e.w, "%s%s%s,%s,%s\n",
			ts, sep, csvEscape(f.Label), evt.keyword(), csvEscape(extra))
		return
	}
	sep := ""
	if ts != "" {
		sep = " "
	}
	if extra != "" {
		extra = " " + extra
	}
	fmt.Fprintf(e.w, "%s%s%s %s%s\n", ts, sep, evt.phrase(), f.Label, extra)
}

// csvEscape quotes a value for inclusion as a single CSV field when it
// contains anything beyond printable ASCII, per RFC 4180.
func csvEscape(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c > '~' || c == '"' || c == ',' {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
