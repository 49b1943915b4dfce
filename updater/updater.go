// Package updater keeps DNS records in sync with the host's addresses.
package updater

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/xmdhs/ddns-ipv6/config"
	"github.com/xmdhs/ddns-ipv6/dns"
)

// Source returns the current address of one family. ok is false when there
// is none right now.
type Source func(ctx context.Context) (addr netip.Addr, ok bool)

// Watcher calls f whenever the addresses may have changed, until ctx is done.
type Watcher func(ctx context.Context, f func()) error

type target struct {
	setup    config.Setup
	provider dns.Provider

	// last successfully published addresses
	saved4 netip.Addr
	saved6 netip.Addr
}

type Updater struct {
	cfg     *config.Config
	ipv4    Source
	ipv6    Source
	watch   Watcher
	targets []*target
	metrics *metrics

	retryOpts []retry.Option
	mu        sync.Mutex
}

type Option func(*Updater)

// WithWatcher enables re-checks outside the regular interval.
func WithWatcher(w Watcher) Option {
	return func(u *Updater) { u.watch = w }
}

// WithRetry replaces the retry options used around each record upsert.
func WithRetry(opts ...retry.Option) Option {
	return func(u *Updater) { u.retryOpts = opts }
}

// New builds an updater with one provider per setup.
func New(cfg *config.Config, providers []dns.Provider, ipv4, ipv6 Source, opts ...Option) (*Updater, error) {
	if len(providers) != len(cfg.Setups) {
		return nil, fmt.Errorf("New: %d providers for %d setups", len(providers), len(cfg.Setups))
	}
	u := &Updater{
		cfg:     cfg,
		ipv4:    ipv4,
		ipv6:    ipv6,
		metrics: newMetrics(),
		retryOpts: []retry.Option{
			retry.Attempts(3),
			retry.Delay(2 * time.Second),
			retry.LastErrorOnly(true),
		},
	}
	for i, s := range cfg.Setups {
		u.targets = append(u.targets, &target{setup: s, provider: providers[i]})
	}
	for _, o := range opts {
		o(u)
	}
	return u, nil
}

// Run checks once, then on every interval tick and every watcher signal,
// until ctx is done.
func (u *Updater) Run(ctx context.Context) error {
	if u.cfg.MetricsListen != "" {
		srv := &http.Server{Addr: u.cfg.MetricsListen, Handler: u.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.L().Error("metrics server", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	trigger := make(chan struct{}, 1)
	if u.watch != nil {
		go func() {
			err := u.watch(ctx, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				zap.L().Warn("address watch stopped, polling only", zap.Error(err))
			}
		}()
	}

	ticker := time.NewTicker(u.cfg.Interval())
	defer ticker.Stop()

	u.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-trigger:
			zap.L().Debug("address change notification")
		}
		u.Check(ctx)
	}
}

// Check looks up the addresses once and publishes the ones that changed.
func (u *Updater) Check(ctx context.Context) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var v4, v6 netip.Addr
	if u.cfg.NeedsIPv4() {
		v4 = u.lookup(ctx, "ipv4", u.ipv4)
	}
	if u.cfg.NeedsIPv6() {
		v6 = u.lookup(ctx, "ipv6", u.ipv6)
	}
	zap.L().Info("addresses", zap.Stringer("ipv4", v4), zap.Stringer("ipv6", v6))

	for _, t := range u.targets {
		if t.setup.IPv4RecordName != "" && v4.IsValid() && v4 != t.saved4 {
			if u.publish(ctx, t, "A", t.setup.IPv4RecordName, v4) {
				t.saved4 = v4
			}
		}
		if t.setup.IPv6RecordName != "" && v6.IsValid() && v6 != t.saved6 {
			if u.publish(ctx, t, "AAAA", t.setup.IPv6RecordName, v6) {
				t.saved6 = v6
			}
		}
	}
}

func (u *Updater) lookup(ctx context.Context, family string, src Source) netip.Addr {
	addr, ok := src(ctx)
	if !ok {
		u.metrics.lookups.WithLabelValues(family, "none").Inc()
		zap.L().Warn("failed to retrieve address", zap.String("family", family))
		return netip.Addr{}
	}
	u.metrics.lookups.WithLabelValues(family, "found").Inc()
	return addr
}

func (u *Updater) publish(ctx context.Context, t *target, recordType, record string, addr netip.Addr) bool {
	name := t.setup.RecordName(record)
	log := zap.L().With(zap.String("type", recordType), zap.String("name", name), zap.Stringer("addr", addr))

	opts := append([]retry.Option{
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("retrying record update", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	}, u.retryOpts...)

	changed, err := retry.DoWithData(func() (bool, error) {
		return t.provider.Upsert(ctx, recordType, name, addr.String())
	}, opts...)
	if err != nil {
		u.metrics.updates.WithLabelValues(recordType, "error").Inc()
		log.Error("failed to update record", zap.Error(err))
		return false
	}

	result := "unchanged"
	if changed {
		result = "changed"
		log.Info("record updated")
	}
	u.metrics.updates.WithLabelValues(recordType, result).Inc()
	u.metrics.lastSuccess.SetToCurrentTime()
	return true
}

// Handler serves the updater's Prometheus metrics.
func (u *Updater) Handler() http.Handler {
	return u.metrics.handler()
}
