package report

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func testEmitter(buf *bytes.Buffer) *Emitter {
	e := NewEmitter(buf)
	e.now = func() time.Time {
		return time.Date(2020, time.September, 12, 0, 1, 17, 123e6, time.UTC)
	}
	return e
}

func TestEmitPlain(t *testing.T) {
	var buf bytes.Buffer
	e := testEmitter(&buf)
	e.Emit(Format{Time: TimeLog, Label: "224.1.1.1%eth0"}, 0, EventDown, "")
	want := "Sep 12 00:01:17.123 no longer receiving packets on 224.1.1.1%eth0\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestEmitCSV(t *testing.T) {
	var buf bytes.Buffer
	e := testEmitter(&buf)
	e.Emit(Format{CSV: true, Time: TimeRaw, Label: "a,b"}, 0, EventCommand, `-l x`)
	want := "1599868877.123,\"a,b\",command,\"-l x\"\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestEmitNoTimestamp(t *testing.T) {
	var buf bytes.Buffer
	e := testEmitter(&buf)
	e.Emit(Format{Time: TimeNone, Label: "lab"}, 0, EventNote, "hello")
	if got := buf.String(); got != "note: lab hello\n" {
		t.Errorf("got %q", got)
	}
}

func TestVerbosityGating(t *testing.T) {
	tests := []struct {
		name    string
		verbose int
		evt     Event
		want    bool
	}{
		{"tx hidden by default", 0, EventTX, false},
		{"tx shown verbose", 1, EventTX, true},
		{"rx hidden by default", 0, EventRX, false},
		{"up shown by default", 0, EventUp, true},
		{"up hidden at verbose one", 1, EventUp, false},
		{"up shown doubly verbose", 2, EventUp, true},
		{"down hidden at verbose one", 1, EventDown, false},
		{"command always shown", 0, EventCommand, true},
		{"note always shown", 0, EventNote, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := testEmitter(&buf)
			e.Emit(Format{Time: TimeNone}, tt.verbose, tt.evt, "")
			if got := buf.Len() > 0; got != tt.want {
				t.Errorf("emitted=%v, want %v (output %q)", got, tt.want, buf.String())
			}
		})
	}
}

func TestTimeFormats(t *testing.T) {
	at := time.Date(2020, time.September, 12, 13, 46, 43, 789e6, time.UTC)
	tests := []struct {
		f    TimeFormat
		want string
	}{
		{TimeLog, "Sep 12 13:46:43.789"},
		{TimeNum, "2020-09-12-13:46:43.789"},
		{TimeRaw, "1599918403.789"},
		{TimeNone, ""},
	}
	for _, tt := range tests {
		if got := tt.f.Render(at); got != tt.want {
			t.Errorf("Render(%v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestCSVEscape(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"has,comma", `"has,comma"`},
		{`has"quote`, `"has""quote"`},
		{"has space", `"has space"`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := csvEscape(tt.in); got != tt.want {
			t.Errorf("csvEscape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCSVEmptyExtraNotQuoted(t *testing.T) {
	var buf bytes.Buffer
	e := testEmitter(&buf)
	e.Emit(Format{CSV: true, Time: TimeNone, Label: "lab"}, 2, EventUp, "")
	if got := buf.String(); !strings.HasPrefix(got, "lab,up,") {
		t.Errorf("got %q", got)
	}
}
