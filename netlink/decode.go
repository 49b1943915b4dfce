package netlink

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/vishvananda/netlink/nl"
	"golang.org/x/sys/unix"
)

type envelopeKind int

const (
	envUnknown envelopeKind = iota
	envData
	envDone
	envKernelError
)

// envelope is one decoded message of a dump reply.
type envelope struct {
	kind envelopeKind

	// set for envData
	msg   unix.IfAddrmsg
	attrs []byte

	// set for envKernelError
	err error
}

var (
	errShortError  = errors.New("short NLMSG_ERROR payload")
	errShortRecord = errors.New("short RTM_NEWADDR payload")
)

func decodeEnvelope(m syscall.NetlinkMessage) (envelope, error) {
	switch m.Header.Type {
	case unix.NLMSG_DONE:
		// A dump may end with an errno in the DONE payload.
		if errno := leadingErrno(m.Data); errno != 0 {
			return envelope{kind: envKernelError, err: fmt.Errorf("dump aborted: %w", errno)}, nil
		}
		return envelope{kind: envDone}, nil
	case unix.NLMSG_ERROR:
		if len(m.Data) < 4 {
			return envelope{}, errShortError
		}
		errno := leadingErrno(m.Data)
		if errno == 0 {
			// ack
			return envelope{kind: envUnknown}, nil
		}
		return envelope{kind: envKernelError, err: errno}, nil
	case unix.RTM_NEWADDR:
		if len(m.Data) < unix.SizeofIfAddrmsg {
			return envelope{}, fmt.Errorf("%w: %d bytes", errShortRecord, len(m.Data))
		}
		return envelope{
			kind:  envData,
			msg:   nl.DeserializeIfAddrmsg(m.Data).IfAddrmsg,
			attrs: m.Data[unix.SizeofIfAddrmsg:],
		}, nil
	}
	return envelope{kind: envUnknown}, nil
}

// leadingErrno reads the negative errno the kernel puts at the start of
// NLMSG_ERROR and NLMSG_DONE payloads.
func leadingErrno(b []byte) syscall.Errno {
	if len(b) < 4 {
		return 0
	}
	v := int32(nl.NativeEndian().Uint32(b[:4]))
	if v >= 0 {
		return syscall.Errno(v)
	}
	return syscall.Errno(-v)
}
