// Package sourceset implements the ordered address-set algebra used for
// multicast source filtering. Sets are kept sorted (family first, then raw
// address bytes) and deduplicated, so unions and differences are linear
// merges and the result order is deterministic.
package sourceset

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

// Family is the address family a session is locked to. The first address
// parsed decides it; every later address must match.
type Family int

const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "IPv4"
	case FamilyIPv6:
		return "IPv6"
	default:
		return "unspecified"
	}
}

// ParseAddr parses a single IP address, inferring the family from the
// address contents when it is not locked yet (':' only ever appears in IPv6
// addresses). Returns the possibly updated family; callers should commit it
// only when the whole operation succeeds.
func ParseAddr(s string, family Family) (netip.Addr, Family, error) {
	if family == FamilyUnspec {
		if strings.Contains(s, ":") {
			family = FamilyIPv6
		} else {
			family = FamilyIPv4
		}
	}
	addr, err := netip.ParseAddr(s)
	if err != nil || (family == FamilyIPv4 && !addr.Is4()) || (family == FamilyIPv6 && !addr.Is6()) {
		return netip.Addr{}, family, fmt.Errorf("invalid %s address '%s'", family, s)
	}
	return addr, family, nil
}

// Set is an ordered, deduplicated collection of source addresses. All
// producers (parsing, union, difference) preserve the sorted order.
type Set []netip.Addr

// New builds a Set from arbitrary addresses, sorting and deduplicating.
func New(addrs ...netip.Addr) Set {
	s := make(Set, len(addrs))
	copy(s, addrs)
	sort.Slice(s, func(i, j int) bool { return s[i].Compare(s[j]) < 0 })
	out := s[:0]
	for i, a := range s {
		if i == 0 || a.Compare(s[i-1]) != 0 {
			out = append(out, a)
		}
	}
	return out
}

// ParseList parses a comma separated address list. "-" or an empty string
// denotes the empty set. Duplicates within the list are deduplicated, not
// rejected.
func ParseList(arg string, family Family) (Set, Family, error) {
	if arg == "-" || arg == "" {
		return Set{}, family, nil
	}
	var addrs []netip.Addr
	for _, part := range strings.Split(arg, ",") {
		addr, fam, err := ParseAddr(part, family)
		if err != nil {
			return nil, family, err
		}
		family = fam
		addrs = append(addrs, addr)
	}
	return New(addrs...), family, nil
}

// Union returns the merge of s and t in sorted order, without duplicates.
func (s Set) Union(t Set) Set {
	out := make(Set, 0, len(s)+len(t))
	i, j := 0, 0
	for i < len(s) || j < len(t) {
		var c int
		switch {
		case i >= len(s):
			c = 1
		case j >= len(t):
			c = -1
		default:
			c = s[i].Compare(t[j])
		}
		var next netip.Addr
		if c <= 0 {
			next = s[i]
			i++
		} else {
			next = t[j]
			j++
		}
		if n := len(out); n == 0 || out[n-1].Compare(next) != 0 {
			out = append(out, next)
		}
	}
	return out
}

// Difference returns every element of s not present in t, in sorted order.
func (s Set) Difference(t Set) Set {
	out := make(Set, 0, len(s))
	i, j := 0, 0
	for i < len(s) && j < len(t) {
		switch c := s[i].Compare(t[j]); {
		case c < 0:
			out = append(out, s[i])
			i++
		case c > 0:
			j++
		default:
			i++
		}
	}
	out = append(out, s[i:]...)
	return out
}

// Contains reports whether a is in the set.
func (s Set) Contains(a netip.Addr) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i].Compare(a) >= 0 })
	return i < len(s) && s[i].Compare(a) == 0
}

// Equal reports whether two sets hold the same addresses.
func (s Set) Equal(t Set) bool {
	if len(s) != len(t) {
		return false
	}
	for i := range s {
		if s[i].Compare(t[i]) != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	copy(out, s)
	return out
}

// String renders the set as a comma separated list, or "-" when empty.
func (s Set) String() string {
	if len(s) == 0 {
		return "-"
	}
	parts := make([]string, len(s))
	for i, a := range s {
		parts[i] = a.String()
	}
	return strings.Join(parts, ",")
}
