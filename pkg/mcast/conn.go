package mcast

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/projectdiscovery/gologger"
	errorutil "github.com/projectdiscovery/utils/errors"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/projectdiscovery/mcastprobe/pkg/sourceset"
)

// ConnConfig describes the single UDP socket a session runs on.
type ConnConfig struct {
	Family    sourceset.Family
	Group     netip.Addr
	Port      int
	Interface *net.Interface
	// TTL is the multicast TTL / hop limit for transmission; -1 keeps the
	// OS default.
	TTL int
	// Receive binds the socket to the group port and prepares it for
	// membership (SO_REUSEADDR, MULTICAST_ALL cleared).
	Receive bool
}

// Conn is the one socket shared by packet transmission, reception, and
// membership management.
type Conn struct {
	pc      net.PacketConn
	dst     *net.UDPAddr
	adapter *GroupAdapter
}

// NewConn opens and configures the session socket. Option failures that the
// kernel may tolerate (multicast interface, TTL) are logged and skipped, as
// a best effort; only socket creation itself is fatal.
func NewConn(cc ConnConfig) (*Conn, error) {
	network := "udp4"
	if cc.Family == sourceset.FamilyIPv6 {
		network = "udp6"
	}
	laddr := ":0"
	lc := net.ListenConfig{}
	if cc.Receive {
		laddr = fmt.Sprintf(":%d", cc.Port)
		lc.Control = receiveControl(cc.Family)
	}
	pc, err := lc.ListenPacket(context.Background(), network, laddr)
	if err != nil {
		return nil, errorutil.NewWithErr(err).Msgf("failed to open %s socket", network)
	}

	var mc membershipConn
	if cc.Family == sourceset.FamilyIPv6 {
		p := ipv6.NewPacketConn(pc)
		if err := p.SetMulticastInterface(cc.Interface); err != nil {
			gologger.Warning().Msgf("failed to set multicast interface to %s: %s", cc.Interface.Name, err)
		}
		if !cc.Receive && cc.TTL >= 0 {
			if err := p.SetMulticastHopLimit(cc.TTL); err != nil {
				gologger.Warning().Msgf("failed to set multicast hop limit to %d: %s", cc.TTL, err)
			}
		}
		mc = p
	} else {
		p := ipv4.NewPacketConn(pc)
		if err := p.SetMulticastInterface(cc.Interface); err != nil {
			gologger.Warning().Msgf("failed to set multicast interface to %s: %s", cc.Interface.Name, err)
		}
		if !cc.Receive && cc.TTL >= 0 {
			if err := p.SetMulticastTTL(cc.TTL); err != nil {
				gologger.Warning().Msgf("failed to set multicast TTL to %d: %s", cc.TTL, err)
			}
		}
		mc = p
	}

	return &Conn{
		pc:      pc,
		dst:     &net.UDPAddr{IP: cc.Group.AsSlice(), Port: cc.Port},
		adapter: NewGroupAdapter(mc, cc.Interface, cc.Group),
	}, nil
}

// Send transmits one datagram to the group.
func (c *Conn) Send(payload []byte) error {
	_, err := c.pc.WriteTo(payload, c.dst)
	return err
}

// Read blocks for one incoming datagram and returns its length.
func (c *Conn) Read(buf []byte) (int, error) {
	n, _, err := c.pc.ReadFrom(buf)
	return n, err
}

// Adapter returns the membership adapter bound to this socket.
func (c *Conn) Adapter() *GroupAdapter {
	return c.adapter
}

func (c *Conn) Close() error {
	return c.pc.Close()
}
