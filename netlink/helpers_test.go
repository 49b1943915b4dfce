package netlink

import (
	"errors"
	"io"
	"net/netip"
	"syscall"
	"testing"

	mdnetlink "github.com/mdlayher/netlink"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

type record struct {
	family uint8
	prefix uint8
	flags  uint8
	scope  uint8
	index  uint32
}

func stableRecord() record {
	return record{family: unix.AF_INET6, prefix: 64, scope: unix.RT_SCOPE_UNIVERSE, index: 2}
}

func (r record) msg() unix.IfAddrmsg {
	return unix.IfAddrmsg{Family: r.family, Prefixlen: r.prefix, Flags: r.flags, Scope: r.scope, Index: r.index}
}

func (r record) header() []byte {
	m := nl.NewIfAddrmsg(int(r.family))
	m.Prefixlen = r.prefix
	m.Flags = r.flags
	m.Scope = r.scope
	m.Index = r.index
	return append([]byte(nil), m.Serialize()...)
}

// addrAttrs encodes one IFA_ADDRESS attribute per payload, followed by a
// label so records look like what the kernel sends.
func addrAttrs(t *testing.T, payloads ...[]byte) []byte {
	t.Helper()
	ae := mdnetlink.NewAttributeEncoder()
	for _, p := range payloads {
		ae.Bytes(unix.IFA_ADDRESS, p)
	}
	ae.String(unix.IFA_LABEL, "eth0")
	b, err := ae.Encode()
	require.NoError(t, err)
	return b
}

func ip16(s string) []byte {
	a := netip.MustParseAddr(s).As16()
	return a[:]
}

func newAddrMsg(t *testing.T, r record, addr string) syscall.NetlinkMessage {
	t.Helper()
	return rawAddrMsg(r, addrAttrs(t, ip16(addr)))
}

func rawAddrMsg(r record, attrs []byte) syscall.NetlinkMessage {
	return syscall.NetlinkMessage{
		Header: syscall.NlMsghdr{Type: unix.RTM_NEWADDR, Flags: unix.NLM_F_MULTI},
		Data:   append(r.header(), attrs...),
	}
}

func doneMsg() syscall.NetlinkMessage {
	return syscall.NetlinkMessage{
		Header: syscall.NlMsghdr{Type: unix.NLMSG_DONE, Flags: unix.NLM_F_MULTI},
		Data:   make([]byte, 4),
	}
}

func errorMsg(errno syscall.Errno) syscall.NetlinkMessage {
	b := make([]byte, 4+unix.SizeofNlMsghdr)
	nl.NativeEndian().PutUint32(b, uint32(-int32(errno)))
	return syscall.NetlinkMessage{
		Header: syscall.NlMsghdr{Type: unix.NLMSG_ERROR},
		Data:   b,
	}
}

// fakeSocket replays datagrams. Messages with a zero sequence number are
// stamped with the sequence number of the sent request.
type fakeSocket struct {
	sendErr   error
	datagrams [][]syscall.NetlinkMessage
	recvErr   error
	from      *unix.SockaddrNetlink

	sent     *nl.NetlinkRequest
	received int
	closed   int
}

func (f *fakeSocket) Send(req *nl.NetlinkRequest) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = req
	return nil
}

func (f *fakeSocket) Receive() ([]syscall.NetlinkMessage, *unix.SockaddrNetlink, error) {
	if f.received == len(f.datagrams) {
		if f.recvErr != nil {
			return nil, nil, f.recvErr
		}
		return nil, nil, io.EOF
	}
	msgs := f.datagrams[f.received]
	f.received++
	for i := range msgs {
		if msgs[i].Header.Seq == 0 {
			msgs[i].Header.Seq = f.sent.Seq
		}
	}
	from := f.from
	if from == nil {
		from = &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	}
	return msgs, from, nil
}

func (f *fakeSocket) Close() {
	f.closed++
}

var errFake = errors.New("fake transport failure")
