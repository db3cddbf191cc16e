package runner

import (
	"net"
	"testing"

	"github.com/projectdiscovery/goflags"

	"github.com/projectdiscovery/mcastprobe/pkg/command"
	"github.com/projectdiscovery/mcastprobe/pkg/mcast"
	"github.com/projectdiscovery/mcastprobe/pkg/session"
)

func newReplayInterpreter() *command.Interpreter {
	in := command.NewInterpreter(session.NewConfig())
	in.ResolveInterface = func(name string) (*net.Interface, error) {
		return &net.Interface{Index: 3, Name: name}, nil
	}
	return in
}

func TestReplayOptions(t *testing.T) {
	in := newReplayInterpreter()
	options := &Options{
		Receive: true,
		Group:   "232.10.10.10",
		Port:    "5001",
		Iface:   "eth0",
		TTL:     "16",
		Include: "10.1.1.1,10.1.1.2",
		Label:   "uplink",
		Period:  "0.5",
		Format:  goflags.StringSlice{"csv", "notime"},
	}
	if err := replayOptions(in, options); err != nil {
		t.Fatal(err)
	}
	cfg := in.Config
	cfg.RecomputeTiming()

	if cfg.Direction != session.DirectionReceive {
		t.Errorf("direction = %v", cfg.Direction)
	}
	if cfg.Group.String() != "232.10.10.10" || cfg.Port != 5001 {
		t.Errorf("group/port = %s/%d", cfg.Group, cfg.Port)
	}
	if cfg.IfaceName != "eth0" || cfg.Iface.Index != 3 {
		t.Errorf("interface = %q/%v", cfg.IfaceName, cfg.Iface)
	}
	if cfg.TTL != 16 {
		t.Errorf("ttl = %d", cfg.TTL)
	}
	if cfg.Filter.Mode != mcast.ModeInclude || cfg.Filter.Sources.String() != "10.1.1.1,10.1.1.2" {
		t.Errorf("filter = %v %q", cfg.Filter.Mode, cfg.Filter.Sources.String())
	}
	if cfg.Format.Label != "uplink" || !cfg.Format.CSV {
		t.Errorf("format = %+v", cfg.Format)
	}
	if cfg.Period != 0.5 {
		t.Errorf("period = %v", cfg.Period)
	}
}

func TestReplayOptionsVerbosity(t *testing.T) {
	tests := []struct {
		options Options
		want    int
	}{
		{Options{}, 0},
		{Options{Verbose: true}, 1},
		{Options{VeryVerbose: true}, 2},
		{Options{Verbose: true, VeryVerbose: true}, 2},
	}
	for _, tt := range tests {
		in := newReplayInterpreter()
		if err := replayOptions(in, &tt.options); err != nil {
			t.Fatal(err)
		}
		if in.Config.Verbose != tt.want {
			t.Errorf("verbose = %d with -v=%v -vv=%v, want %d",
				in.Config.Verbose, tt.options.Verbose, tt.options.VeryVerbose, tt.want)
		}
	}
}

func TestReplayOptionsRejectsBadValues(t *testing.T) {
	for _, options := range []*Options{
		{Transmit: true, Receive: true},
		{Port: "70000"},
		{TTL: "300"},
		{Period: "0.0005"},
		{Multiplier: "1.0"},
		{Data: "base64:aGk="},
		{Exclude: "+1.1.1.1"}, // deltas are a stdin-only form
		{Format: goflags.StringSlice{"yaml"}},
	} {
		in := newReplayInterpreter()
		if err := replayOptions(in, options); err == nil {
			t.Errorf("options %+v accepted", options)
		}
	}
}
