package netlink

import (
	"context"
	"errors"
	"fmt"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"go.uber.org/zap"
)

var errSubscriptionClosed = errors.New("address subscription closed")

// Subscribe calls f for every IPv6 address added or removed in ns until ctx
// is done. It returns ctx.Err() on cancellation, or an error if the kernel
// subscription could not be set up or broke.
func Subscribe(ctx context.Context, ns netns.NsHandle, f func()) error {
	addrCH := make(chan netlink.AddrUpdate, 10)
	done := make(chan struct{})

	context.AfterFunc(ctx, func() {
		close(done)
	})

	err := netlink.AddrSubscribeWithOptions(addrCH, done, netlink.AddrSubscribeOptions{
		Namespace: &ns,
		ErrorCallback: func(err error) {
			zap.L().Warn("address subscription", zap.Error(err))
		},
	})
	if err != nil {
		return fmt.Errorf("Subscribe: %w", err)
	}

	return handleUpdates(ctx, addrCH, f)
}

// handleUpdates drains ch, calling f for each IPv6 update, until ch is closed.
func handleUpdates(ctx context.Context, ch <-chan netlink.AddrUpdate, f func()) error {
	for u := range ch {
		if u.LinkAddress.IP.To4() != nil {
			continue
		}
		zap.L().Debug("IPv6 address change",
			zap.Stringer("addr", &u.LinkAddress),
			zap.Int("ifindex", u.LinkIndex),
			zap.Bool("new", u.NewAddr),
		)
		f()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("Subscribe: %w", errSubscriptionClosed)
}
