// Package mcast owns the multicast side of a session: socket construction,
// group membership, and source filter installation per RFC 3493/3678/4607.
// Filter changes are expressed as a desired mode plus source set; the
// adapter translates the difference against the kernel-installed state into
// the minimal join/leave/block/unblock sequence.
package mcast

import (
	"net"
	"net/netip"

	"github.com/projectdiscovery/gologger"
	errorutil "github.com/projectdiscovery/utils/errors"

	"github.com/projectdiscovery/mcastprobe/pkg/sourceset"
)

// FilterMode is a multicast source filter mode.
type FilterMode int

const (
	// ModeExclude accepts all sources except those listed. An empty
	// exclude set is the any-source multicast default.
	ModeExclude FilterMode = iota
	// ModeInclude accepts only the listed sources.
	ModeInclude
)

func (m FilterMode) String() string {
	if m == ModeInclude {
		return "include"
	}
	return "exclude"
}

// Flag returns the option spelling of the mode, for query output.
func (m FilterMode) Flag() string {
	if m == ModeInclude {
		return "-I"
	}
	return "-E"
}

// Filter pairs a filter mode with a set of source addresses.
type Filter struct {
	Mode    FilterMode
	Sources sourceset.Set
}

// Clone returns a deep copy, so a desired filter can keep mutating after
// the copy has been recorded as applied.
func (f Filter) Clone() Filter {
	return Filter{Mode: f.Mode, Sources: f.Sources.Clone()}
}

func (f Filter) Equal(o Filter) bool {
	return f.Mode == o.Mode && f.Sources.Equal(o.Sources)
}

// Adapter installs a desired filter state on a socket. Implementations must
// be idempotent: applying the same state twice is a no-op on the underlying
// OS resources.
type Adapter interface {
	ApplyFilter(f Filter) error
}

// IdentifyInterface resolves a network interface by name.
func IdentifyInterface(name string) (*net.Interface, error) {
	if name == "" {
		return nil, errorutil.New("missing interface name")
	}
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		return nil, errorutil.NewWithErr(err).Msgf("interface '%s' error", name)
	}
	return ifi, nil
}

// isSSMGroup reports whether the group is in the source-specific multicast
// range: 232/8 for IPv4 (RFC 4607), ff3x::/32 for IPv6.
func isSSMGroup(group netip.Addr) bool {
	b := group.AsSlice()
	if group.Is4() {
		return b[0] == 232
	}
	return b[0] == 0xff && b[1]&0xf0 == 0x30
}

// CheckGroup warns about questionable group/filter combinations: a group
// outside the multicast range on first use, and SSM-range groups used
// without include-mode filtering (or the reverse) whenever the membership
// is actually in play. Warnings only; nothing is rejected here.
func CheckGroup(group netip.Addr, filter Filter, firstTime, willJoin bool) {
	if firstTime && !group.IsMulticast() {
		gologger.Warning().Msgf("%s is not a multicast group", group)
		return
	}
	if !willJoin {
		return
	}
	ssmGroup := isSSMGroup(group)
	ssmFilter := filter.Mode == ModeInclude
	if ssmGroup && !ssmFilter {
		gologger.Warning().Msgf("%s is a source specific multicast group", group)
	}
	if ssmFilter && !ssmGroup {
		gologger.Warning().Msgf("%s is not a source specific multicast group", group)
	}
}
