// Package session holds the mutable configuration of one probe run and the
// transactional state that keeps the socket filter consistent with it.
package session

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"path/filepath"
	"strings"
	"time"

	envutil "github.com/projectdiscovery/utils/env"
	stringsutil "github.com/projectdiscovery/utils/strings"

	"github.com/projectdiscovery/mcastprobe/pkg/mcast"
	"github.com/projectdiscovery/mcastprobe/pkg/report"
	"github.com/projectdiscovery/mcastprobe/pkg/sourceset"
)

// Defaults, overridable from the environment.
var (
	DefaultPort      = envutil.GetEnvOrDefault("MCASTPROBE_PORT", 4444)
	DefaultTTL       = envutil.GetEnvOrDefault("MCASTPROBE_TTL", 4)
	DefaultIPv4Group = envutil.GetEnvOrDefault("MCASTPROBE_IPV4_GROUP", "224.1.1.1")
	DefaultIPv6Group = envutil.GetEnvOrDefault("MCASTPROBE_IPV6_GROUP", "ff15::abcd")
)

// Direction tells whether a session transmits or receives. Exactly one
// direction holds for the lifetime of a run.
type Direction int

const (
	DirectionUnset Direction = iota
	DirectionTransmit
	DirectionReceive
)

func (d Direction) String() string {
	switch d {
	case DirectionTransmit:
		return "transmit"
	case DirectionReceive:
		return "receive"
	default:
		return "unset"
	}
}

// DirectionFromExecutable infers the direction from the program name, so
// links named e.g. "mcastsend" or "mcastrx" need no -t/-r flag. The match
// is a case-insensitive suffix check after stripping any extension.
func DirectionFromExecutable(path string) Direction {
	name := strings.ToLower(filepath.Base(path))
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	switch {
	case stringsutil.HasSuffixAny(name, "send", "snd", "tx"):
		return DirectionTransmit
	case stringsutil.HasSuffixAny(name, "receive", "recv", "rcv", "rx"):
		return DirectionReceive
	default:
		return DirectionUnset
	}
}

// Config is the one mutable record a session runs from. The Filter field is
// the *desired* source filter; what the socket actually holds lives in
// FilterTransaction.
type Config struct {
	Direction Direction
	// ImpliedDirection is the direction fixed by the executable name; when
	// set, -t/-r are rejected.
	ImpliedDirection Direction
	Family           sourceset.Family
	Group            netip.Addr
	Port             int
	IfaceName        string
	Iface            *net.Interface
	// TTL is the multicast TTL / hop limit; -1 selects the OS default.
	TTL     int
	Filter  mcast.Filter
	Verbose int
	Format  report.Format
	// Period is the seconds between packets; Multiplier times Period gives
	// the receive-idle timeout. The derived durations are refreshed by
	// RecomputeTiming when either changes.
	Period     float64
	Multiplier float64
	PeriodDur  time.Duration
	Timeout    time.Duration
	Data       []byte
	// Join keeps group membership even when transmitting.
	Join bool
	// StdinCommands enables the line-oriented command protocol on stdin.
	StdinCommands bool
}

func NewConfig() *Config {
	cfg := &Config{
		TTL:        DefaultTTL,
		Filter:     mcast.Filter{Mode: mcast.ModeExclude, Sources: sourceset.Set{}},
		Format:     report.Format{Time: report.TimeLog},
		Period:     1.0,
		Multiplier: 3.0,
	}
	cfg.RecomputeTiming()
	return cfg
}

// RecomputeTiming refreshes the derived durations from Period and
// Multiplier.
func (c *Config) RecomputeTiming() {
	c.PeriodDur = time.Duration(c.Period * float64(time.Second))
	c.Timeout = time.Duration(c.Period * c.Multiplier * float64(time.Second))
}

// WillJoin reports whether the session holds group membership: receivers
// always do, transmitters only with the join flag.
func (c *Config) WillJoin() bool {
	return c.Direction == DirectionReceive || c.Join
}

// ApplyDefaults fills the group, port, label, and payload when the user did
// not set them. The default payload is the start time, eight bytes of
// big-endian seconds and microseconds.
func (c *Config) ApplyDefaults(now time.Time) error {
	if !c.Group.IsValid() {
		def := DefaultIPv4Group
		if c.Family == sourceset.FamilyIPv6 {
			def = DefaultIPv6Group
		}
		group, fam, err := sourceset.ParseAddr(def, c.Family)
		if err != nil {
			return err
		}
		c.Group, c.Family = group, fam
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Format.Label == "" {
		c.Format.Label = fmt.Sprintf("%s%%%s", c.Group, c.IfaceName)
	}
	if c.Data == nil {
		data := make([]byte, 8)
		binary.BigEndian.PutUint32(data, uint32(now.Unix()))
		binary.BigEndian.PutUint32(data[4:], uint32(now.Nanosecond()/1000))
		c.Data = data
	}
	return nil
}
