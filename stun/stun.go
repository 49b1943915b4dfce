// Package stun discovers the public address of this host with a STUN
// binding request.
package stun

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/pion/stun"
)

// DefaultServer is used when no server is configured.
const DefaultServer = "stun.cloudflare.com:3478"

// Lookup returns the XOR-MAPPED-ADDRESS the server reports for a binding
// request sent over network ("udp4" or "udp6").
func Lookup(ctx context.Context, network, server string) (netip.Addr, error) {
	if server == "" {
		server = DefaultServer
	}
	d := net.Dialer{}
	sc, err := d.DialContext(ctx, network, server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("Lookup: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		sc.SetDeadline(deadline)
	}

	c, err := stun.NewClient(sc)
	if err != nil {
		sc.Close()
		return netip.Addr{}, fmt.Errorf("Lookup: %w", err)
	}
	// Closing the client closes sc.
	defer c.Close()

	msg, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("Lookup: build request: %w", err)
	}

	var xorAddr stun.XORMappedAddress
	var errr error
	if err = c.Do(msg, func(res stun.Event) {
		if res.Error != nil {
			errr = res.Error
			return
		}
		if getErr := xorAddr.GetFrom(res.Message); getErr != nil {
			errr = getErr
		}
	}); err != nil {
		return netip.Addr{}, fmt.Errorf("Lookup: %w", err)
	}
	if errr != nil {
		return netip.Addr{}, fmt.Errorf("Lookup: %w", errr)
	}

	ip, ok := netip.AddrFromSlice(xorAddr.IP)
	if !ok {
		return netip.Addr{}, fmt.Errorf("Lookup: bad mapped address %v", xorAddr.IP)
	}
	return ip.Unmap(), nil
}

// IPv4 is Lookup over udp4.
func IPv4(ctx context.Context, server string) (netip.Addr, error) {
	return Lookup(ctx, "udp4", server)
}

// IPv6 is Lookup over udp6.
func IPv6(ctx context.Context, server string) (netip.Addr, error) {
	return Lookup(ctx, "udp6", server)
}
