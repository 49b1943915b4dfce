package netlink

import (
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

// newDumpRequest asks the kernel for every IPv6 address on every interface.
// Prefix length, scope, index and flags stay zero: filtering happens in accept.
func newDumpRequest() *nl.NetlinkRequest {
	req := nl.NewNetlinkRequest(unix.RTM_GETADDR, unix.NLM_F_DUMP)
	req.AddData(nl.NewIfAddrmsg(unix.AF_INET6))
	return req
}
