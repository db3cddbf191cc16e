package mcast

import (
	"net"
	"net/netip"

	"github.com/projectdiscovery/mcastprobe/pkg/sourceset"
)

// membershipConn is the subset of ipv4.PacketConn / ipv6.PacketConn used to
// manage group membership. Both satisfy it with identical signatures, which
// keeps the adapter family-agnostic; tests substitute a fake.
type membershipConn interface {
	JoinGroup(ifi *net.Interface, group net.Addr) error
	LeaveGroup(ifi *net.Interface, group net.Addr) error
	JoinSourceSpecificGroup(ifi *net.Interface, group, source net.Addr) error
	LeaveSourceSpecificGroup(ifi *net.Interface, group, source net.Addr) error
	ExcludeSourceSpecificGroup(ifi *net.Interface, group, source net.Addr) error
	IncludeSourceSpecificGroup(ifi *net.Interface, group, source net.Addr) error
}

// GroupAdapter applies desired filter states to a multicast socket. It
// remembers what the kernel currently holds (membership flag plus installed
// filter) and issues only the operations that close the gap, so repeated
// applications of the same state touch nothing.
type GroupAdapter struct {
	mc     membershipConn
	ifi    *net.Interface
	group  net.Addr
	joined bool
	cur    Filter
}

// NewGroupAdapter wraps a membership-capable packet conn for one group on
// one interface. The socket starts with no membership at all.
func NewGroupAdapter(mc membershipConn, ifi *net.Interface, group netip.Addr) *GroupAdapter {
	return &GroupAdapter{
		mc:    mc,
		ifi:   ifi,
		group: &net.UDPAddr{IP: group.AsSlice()},
		cur:   Filter{Mode: ModeExclude, Sources: sourceset.Set{}},
	}
}

// ApplyFilter transitions the socket to the desired filter state. On error
// the operations already performed stay recorded, so a retry (or a rollback
// to the previous state) continues from the partial state rather than
// re-issuing completed joins.
func (a *GroupAdapter) ApplyFilter(want Filter) error {
	if want.Mode == ModeInclude {
		return a.applyInclude(want.Sources)
	}
	return a.applyExclude(want.Sources)
}

// applyInclude establishes per-source memberships for exactly the wanted
// set. An empty set means no membership at all: on Linux an include filter
// with zero sources leaves the group, so the adapter models it the same way
// and will rejoin on the next exclude-mode application.
func (a *GroupAdapter) applyInclude(want sourceset.Set) error {
	if a.cur.Mode == ModeExclude {
		// mode switch: drop the any-source membership (and its blocks)
		// before building up per-source state
		if a.joined {
			if err := a.mc.LeaveGroup(a.ifi, a.group); err != nil {
				return err
			}
			a.joined = false
		}
		a.cur = Filter{Mode: ModeInclude, Sources: sourceset.Set{}}
	}
	for _, src := range want.Difference(a.cur.Sources) {
		if err := a.mc.JoinSourceSpecificGroup(a.ifi, a.group, srcAddr(src)); err != nil {
			return err
		}
		a.cur.Sources = a.cur.Sources.Union(sourceset.New(src))
	}
	for _, src := range a.cur.Sources.Difference(want) {
		if err := a.mc.LeaveSourceSpecificGroup(a.ifi, a.group, srcAddr(src)); err != nil {
			return err
		}
		a.cur.Sources = a.cur.Sources.Difference(sourceset.New(src))
	}
	return nil
}

// applyExclude joins the group (if not yet a member) and blocks exactly the
// wanted sources.
func (a *GroupAdapter) applyExclude(want sourceset.Set) error {
	if a.cur.Mode == ModeInclude {
		for _, src := range a.cur.Sources.Clone() {
			if err := a.mc.LeaveSourceSpecificGroup(a.ifi, a.group, srcAddr(src)); err != nil {
				return err
			}
			a.cur.Sources = a.cur.Sources.Difference(sourceset.New(src))
		}
		a.cur = Filter{Mode: ModeExclude, Sources: sourceset.Set{}}
	}
	if !a.joined {
		if err := a.mc.JoinGroup(a.ifi, a.group); err != nil {
			return err
		}
		a.joined = true
	}
	for _, src := range want.Difference(a.cur.Sources) {
		if err := a.mc.ExcludeSourceSpecificGroup(a.ifi, a.group, srcAddr(src)); err != nil {
			return err
		}
		a.cur.Sources = a.cur.Sources.Union(sourceset.New(src))
	}
	for _, src := range a.cur.Sources.Difference(want) {
		if err := a.mc.IncludeSourceSpecificGroup(a.ifi, a.group, srcAddr(src)); err != nil {
			return err
		}
		a.cur.Sources = a.cur.Sources.Difference(sourceset.New(src))
	}
	return nil
}

func srcAddr(a netip.Addr) net.Addr {
	return &net.UDPAddr{IP: a.AsSlice()}
}
