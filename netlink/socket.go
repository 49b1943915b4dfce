package netlink

import (
	"fmt"
	"syscall"

	"github.com/vishvananda/netlink/nl"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

const kernelPid = 0

// socket is the part of *nl.NetlinkSocket the lookup needs.
type socket interface {
	Send(request *nl.NetlinkRequest) error
	Receive() ([]syscall.NetlinkMessage, *unix.SockaddrNetlink, error)
	Close()
}

func openRouteSocket(ns netns.NsHandle) (socket, error) {
	s, err := nl.GetNetlinkSocketAt(ns, netns.None(), unix.NETLINK_ROUTE)
	if err != nil {
		return nil, fmt.Errorf("openRouteSocket: %w", err)
	}
	return s, nil
}
