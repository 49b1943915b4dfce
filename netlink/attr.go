package netlink

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

var (
	errNoAddressAttr = errors.New("no 16 byte IFA_ADDRESS attribute")
	errBadAttr       = errors.New("invalid rtnetlink attribute length")
)

// addressFromAttrs walks the attribute list of an address record once and
// returns the payload of the first IFA_ADDRESS attribute that is exactly
// 16 bytes long. Each header is bounds checked before it is used; attributes
// after the match are not looked at.
func addressFromAttrs(b []byte) (netip.Addr, error) {
	native := nl.NativeEndian()
	for len(b) >= unix.SizeofRtAttr {
		l := int(native.Uint16(b[0:2]))
		typ := native.Uint16(b[2:4])
		if l < unix.SizeofRtAttr || l > len(b) {
			return netip.Addr{}, fmt.Errorf("addressFromAttrs: %w: rta_len %d, %d bytes left", errBadAttr, l, len(b))
		}
		if typ == unix.IFA_ADDRESS && l-unix.SizeofRtAttr == net.IPv6len {
			return netip.AddrFrom16([16]byte(b[unix.SizeofRtAttr:l])), nil
		}
		// The last attribute may come without its padding.
		next := nl.RtaAlignOf(l)
		if next >= len(b) {
			return netip.Addr{}, errNoAddressAttr
		}
		b = b[next:]
	}
	if len(b) != 0 {
		return netip.Addr{}, fmt.Errorf("addressFromAttrs: %w: %d trailing bytes", errBadAttr, len(b))
	}
	return netip.Addr{}, errNoAddressAttr
}
