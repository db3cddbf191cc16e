// Package command parses probe commands, whether given as command-line
// options or as lines on stdin, and applies them to the session
// configuration.
package command

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"

	errorutil "github.com/projectdiscovery/utils/errors"

	"github.com/projectdiscovery/mcastprobe/pkg/mcast"
	"github.com/projectdiscovery/mcastprobe/pkg/report"
	"github.com/projectdiscovery/mcastprobe/pkg/session"
	"github.com/projectdiscovery/mcastprobe/pkg/sourceset"
)

// Prefix distinguishes where a command came from and what form it took.
type Prefix byte

const (
	// PrefixNone marks options given on the command line.
	PrefixNone Prefix = 0
	// PrefixSet is the plain '-x' stdin form.
	PrefixSet Prefix = '-'
	// PrefixToggle is the '+x' stdin form, usually reset/disable.
	PrefixToggle Prefix = '+'
	// PrefixControl is the '.x' stdin form, for control commands.
	PrefixControl Prefix = '.'
	// PrefixQuery is the '?x' stdin form, reporting without mutating.
	PrefixQuery Prefix = '?'
)

// Action tells the session loop what a successfully applied command
// requires of it.
type Action int

const (
	ActionNone Action = iota
	// ActionSourceChange marks the source filter dirty; the loop must run
	// a filter transaction.
	ActionSourceChange
	// ActionTimingChange requires rederiving period and timeout durations.
	ActionTimingChange
	// ActionExit ends the session.
	ActionExit
)

// maxQueryRender bounds the rendering of a query response.
const maxQueryRender = 1024

// Interpreter applies parsed commands to a Config. Query responses go
// through Notify; ResolveInterface and InterfaceAddr are swappable for
// tests.
type Interpreter struct {
	Config           *session.Config
	Notify           func(string)
	ResolveInterface func(string) (*net.Interface, error)
	InterfaceAddr    func(*net.Interface) string
}

func NewInterpreter(cfg *session.Config) *Interpreter {
	return &Interpreter{
		Config:           cfg,
		Notify:           func(string) {},
		ResolveInterface: mcast.IdentifyInterface,
		InterfaceAddr:    firstInterfaceAddr,
	}
}

// firstInterfaceAddr returns the interface's primary address, or "" when
// none can be determined.
func firstInterfaceAddr(ifi *net.Interface) string {
	if ifi == nil {
		return ""
	}
	addrs, err := ifi.Addrs()
	if err != nil || len(addrs) == 0 {
		return ""
	}
	if ipn, ok := addrs[0].(*net.IPNet); ok {
		return ipn.IP.String()
	}
	return addrs[0].String()
}

// ParseLine splits a stdin command line into prefix character, option
// code, and argument. Format: prefix char, option char, optional spaces,
// argument.
func ParseLine(line string) (Prefix, byte, string, error) {
	if len(line) < 2 {
		return 0, 0, "", errorutil.New("invalid command '%s'", line)
	}
	arg := strings.TrimLeft(line[2:], " \t")
	return Prefix(line[0]), line[1], arg, nil
}

// Command parses and applies one stdin command line.
func (in *Interpreter) Command(line string) (Action, error) {
	prefix, code, arg, err := ParseLine(line)
	if err != nil {
		return ActionNone, err
	}
	return in.Apply(prefix, code, arg)
}

// Apply validates one command against the session configuration and
// applies it. A returned error means the command was rejected and the
// configuration is unchanged.
func (in *Interpreter) Apply(prefix Prefix, code byte, arg string) (Action, error) {
	cfg := in.Config

	switch code {
	case 't', 'r':
		if cfg.ImpliedDirection != session.DirectionUnset {
			return ActionNone, errorutil.New("-t/-r may not be used with a command name which determines direction")
		}
		if cfg.Direction != session.DirectionUnset || prefix != PrefixNone {
			return ActionNone, errorutil.New("-t/-r may not be used more than once")
		}
		if code == 't' {
			cfg.Direction = session.DirectionTransmit
		} else {
			cfg.Direction = session.DirectionReceive
		}

	case 'g':
		if prefix != PrefixNone {
			return ActionNone, errorutil.New("-g may only appear on the command line")
		}
		if cfg.Group.IsValid() {
			return ActionNone, errorutil.New("-g may not be used more than once")
		}
		group, fam, err := sourceset.ParseAddr(arg, cfg.Family)
		if err != nil {
			return ActionNone, err
		}
		cfg.Group, cfg.Family = group, fam

	case 'p':
		if prefix != PrefixNone {
			return ActionNone, errorutil.New("-p may only appear on the command line")
		}
		if cfg.Port != 0 {
			return ActionNone, errorutil.New("-p may not be used more than once")
		}
		port, err := strconv.Atoi(arg)
		if err != nil || port < 1 || port > 65535 {
			return ActionNone, errorutil.New("-p port must be in range 1-65535")
		}
		cfg.Port = port

	case 'i':
		if prefix == PrefixQuery {
			idx := 0
			if cfg.Iface != nil {
				idx = cfg.Iface.Index
			}
			info := fmt.Sprintf("interface info: name '%s' index %d", cfg.IfaceName, idx)
			if addr := in.InterfaceAddr(cfg.Iface); addr != "" {
				info += " addr " + addr
			}
			in.Notify(info)
			return ActionNone, nil
		}
		if prefix != PrefixNone {
			return ActionNone, errorutil.New("-i may only appear on the command line")
		}
		if cfg.IfaceName != "" {
			return ActionNone, errorutil.New("-i may not be used more than once")
		}
		ifi, err := in.ResolveInterface(arg)
		if err != nil {
			return ActionNone, err
		}
		cfg.IfaceName, cfg.Iface = arg, ifi

	case 'T':
		if prefix != PrefixNone {
			return ActionNone, errorutil.New("-T may only appear on the command line")
		}
		if arg == "-" {
			cfg.TTL = -1
			break
		}
		ttl, err := strconv.Atoi(arg)
		if err != nil || ttl < 0 || ttl > 255 {
			return ActionNone, errorutil.New("TTL/hop limit value '%s' outside range 0-255", arg)
		}
		cfg.TTL = ttl

	case 'E', 'I':
		return in.sourceOption(prefix, code, arg)

	case 'v':
		switch prefix {
		case PrefixNone, PrefixSet:
			cfg.Verbose++
		case PrefixToggle:
			cfg.Verbose = 0
		default:
			return ActionNone, invalidCommand(prefix, code)
		}

	case 'l':
		if prefix != PrefixNone && prefix != PrefixSet {
			return ActionNone, invalidCommand(prefix, code)
		}
		cfg.Format.Label = arg

	case 'f':
		return in.formatOption(prefix, arg)

	case 'P':
		if prefix != PrefixNone && prefix != PrefixSet {
			return ActionNone, invalidCommand(prefix, code)
		}
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil || !(f >= 0.001 && f <= 60.0) {
			return ActionNone, errorutil.New("-P period must be in range 0.001-60 seconds")
		}
		cfg.Period = f
		return ActionTimingChange, nil

	case 'm':
		if prefix != PrefixNone && prefix != PrefixSet {
			return ActionNone, invalidCommand(prefix, code)
		}
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil || !(f >= 1.1 && f <= 10.0) {
			return ActionNone, errorutil.New("-m multiplier must be in range 1.1-10")
		}
		cfg.Multiplier = f
		return ActionTimingChange, nil

	case 'd':
		if prefix != PrefixNone && prefix != PrefixSet {
			return ActionNone, invalidCommand(prefix, code)
		}
		return in.dataOption(arg)

	case 'j':
		if prefix != PrefixNone {
			return ActionNone, errorutil.New("-j only allowed on command line")
		}
		cfg.Join = true

	case 'k':
		switch prefix {
		case PrefixToggle:
			// the loop owning the line buffer drops any partial line
			cfg.StdinCommands = false
		case PrefixNone, PrefixSet:
			cfg.StdinCommands = true
		default:
			return ActionNone, invalidCommand(prefix, code)
		}

	case 'x':
		if prefix == PrefixControl {
			return ActionExit, nil
		}
		return ActionNone, invalidCommand(prefix, code)

	case '.':
		// no operation; the command line itself is still echoed

	default:
		return ActionNone, invalidCommand(prefix, code)
	}

	return ActionNone, nil
}

// sourceOption handles -E/-I: replace, extend, or shrink the desired
// source filter, or report it for the '?' prefix.
func (in *Interpreter) sourceOption(prefix Prefix, code byte, arg string) (Action, error) {
	cfg := in.Config

	if prefix == PrefixQuery {
		in.Notify(renderFilter(cfg.Filter))
		return ActionNone, nil
	}
	if prefix != PrefixNone && prefix != PrefixSet {
		return ActionNone, invalidCommand(prefix, code)
	}

	mode := mcast.ModeExclude
	if code == 'I' {
		mode = mcast.ModeInclude
	}

	var delta byte
	if len(arg) > 1 && (arg[0] == '+' || arg[0] == '-') {
		delta = arg[0]
		arg = arg[1:]
	}
	if delta != 0 && prefix == PrefixNone {
		return ActionNone, errorutil.New("-%c doesn't take +/- deltas on command line", code)
	}
	if delta != 0 && mode != cfg.Filter.Mode {
		return ActionNone, errorutil.New("-%c doesn't take +/- deltas when changing mode", code)
	}

	set, fam, err := sourceset.ParseList(arg, cfg.Family)
	if err != nil {
		return ActionNone, err
	}

	var combined sourceset.Set
	switch delta {
	case '+':
		combined = cfg.Filter.Sources.Union(set)
	case '-':
		combined = cfg.Filter.Sources.Difference(set)
	default:
		combined = set
	}

	cfg.Family = fam
	cfg.Filter = mcast.Filter{Mode: mode, Sources: combined}
	return ActionSourceChange, nil
}

// renderFilter is the '?E'/'?I' query response.
func renderFilter(f mcast.Filter) string {
	s := fmt.Sprintf("source setting: %s%s", f.Mode.Flag(), f.Sources.String())
	if len(s) > maxQueryRender {
		return "?"
	}
	return s
}

// dataOption handles -d: the packet payload, as "hex:" digits or a
// "text:" literal copied verbatim.
func (in *Interpreter) dataOption(arg string) (Action, error) {
	switch {
	case strings.HasPrefix(arg, "hex:"):
		digits := arg[len("hex:"):]
		if len(digits)%2 != 0 {
			return ActionNone, errorutil.New("odd number of digits in -d option")
		}
		data, err := hex.DecodeString(digits)
		if err != nil {
			return ActionNone, errorutil.New("non hex digit character in -d option")
		}
		in.Config.Data = data
	case strings.HasPrefix(arg, "text:"):
		in.Config.Data = []byte(arg[len("text:"):])
	default:
		return ActionNone, errorutil.New("unrecognized format in -d option")
	}
	return ActionNone, nil
}

// formatOption handles -f: CSV on/off and the timestamp style.
func (in *Interpreter) formatOption(prefix Prefix, arg string) (Action, error) {
	cfg := in.Config
	if prefix != PrefixNone && prefix != PrefixSet {
		return ActionNone, invalidCommand(prefix, 'f')
	}
	switch strings.ToLower(arg) {
	case "csv":
		cfg.Format.CSV = true
	case "nocsv":
		cfg.Format.CSV = false
	case "logtime":
		cfg.Format.Time = report.TimeLog
	case "rawtime":
		cfg.Format.Time = report.TimeRaw
	case "numtime":
		cfg.Format.Time = report.TimeNum
	case "notime":
		cfg.Format.Time = report.TimeNone
	default:
		return ActionNone, errorutil.New("-f %s is not a valid formatting option", arg)
	}
	return ActionNone, nil
}

func invalidCommand(prefix Prefix, code byte) error {
	if prefix == PrefixNone {
		return errorutil.New("-%c is not a valid option", code)
	}
	return errorutil.New("%c%c is not a valid command", byte(prefix), code)
}
