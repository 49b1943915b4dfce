// Package netlink finds the host's stable global IPv6 address by dumping the
// kernel's address table over NETLINK_ROUTE, and watches it for changes.
package netlink

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/vishvananda/netns"
	"go.uber.org/zap"
)

var errNoStableAddress = errors.New("no stable global IPv6 address")

// GetStableIPv6 returns the first IPv6 address, in kernel dump order, that is
// global scope, has a /64 prefix and is neither secondary nor temporary.
// The second result is false when there is no such address or the lookup
// failed; the reason is only logged.
func GetStableIPv6() (netip.Addr, bool) {
	return GetStableIPv6At(netns.None())
}

// GetStableIPv6At is GetStableIPv6 run against the network namespace ns.
func GetStableIPv6At(ns netns.NsHandle) (netip.Addr, bool) {
	return lookup(func() (socket, error) { return openRouteSocket(ns) })
}

func lookup(open func() (socket, error)) (netip.Addr, bool) {
	s, err := open()
	if err != nil {
		zap.L().Warn("stable IPv6 lookup: transport", zap.Error(err))
		return netip.Addr{}, false
	}
	defer s.Close()

	addr, err := queryStable(s)
	switch {
	case errors.Is(err, errNoStableAddress):
		zap.L().Debug("stable IPv6 lookup: no match")
		return netip.Addr{}, false
	case err != nil:
		zap.L().Warn("stable IPv6 lookup failed", zap.Error(err))
		return netip.Addr{}, false
	}
	zap.L().Debug("stable IPv6 lookup", zap.Stringer("addr", addr))
	return addr, true
}

// queryStable sends one dump request on s and reads replies until the first
// accepted record, the end of the dump, or an error.
func queryStable(s socket) (netip.Addr, error) {
	req := newDumpRequest()
	if err := s.Send(req); err != nil {
		return netip.Addr{}, fmt.Errorf("queryStable: send: %w", err)
	}

	for {
		msgs, from, err := s.Receive()
		if err != nil {
			return netip.Addr{}, fmt.Errorf("queryStable: receive: %w", err)
		}
		if from != nil && from.Pid != kernelPid {
			zap.L().Debug("ignoring netlink datagram from non-kernel sender", zap.Uint32("pid", from.Pid))
			continue
		}

		for _, m := range msgs {
			if m.Header.Seq != req.Seq {
				continue
			}
			env, err := decodeEnvelope(m)
			if err != nil {
				return netip.Addr{}, fmt.Errorf("queryStable: decode: %w", err)
			}

			switch env.kind {
			case envDone:
				return netip.Addr{}, errNoStableAddress
			case envKernelError:
				return netip.Addr{}, fmt.Errorf("queryStable: kernel: %w", env.err)
			case envData:
				if !accept(env.msg) {
					continue
				}
				addr, err := addressFromAttrs(env.attrs)
				if err != nil {
					zap.L().Debug("skipping address record",
						zap.Uint32("ifindex", env.msg.Index),
						zap.Error(err),
					)
					continue
				}
				return addr, nil
			}
		}
	}
}
