package netlink

import "golang.org/x/sys/unix"

// stablePrefixLen is the prefix length of a normal SLAAC/DHCPv6 subnet
// assignment. Anything else is rejected.
const stablePrefixLen = 64

// accept reports whether an address record is a stable global candidate.
// Only fixed header fields are consulted, so no attribute is parsed for a
// rejected record.
func accept(m unix.IfAddrmsg) bool {
	switch {
	case m.Family != unix.AF_INET6:
		return false
	case m.Prefixlen != stablePrefixLen:
		return false
	case m.Scope != unix.RT_SCOPE_UNIVERSE:
		return false
	case m.Flags&unix.IFA_F_SECONDARY != 0:
		return false
	case m.Flags&unix.IFA_F_TEMPORARY != 0:
		return false
	}
	return true
}
