package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vishvananda/netns"
	"go.uber.org/zap"

	"github.com/xmdhs/ddns-ipv6/config"
	"github.com/xmdhs/ddns-ipv6/dns"
	"github.com/xmdhs/ddns-ipv6/logging"
	"github.com/xmdhs/ddns-ipv6/netlink"
	"github.com/xmdhs/ddns-ipv6/stun"
	"github.com/xmdhs/ddns-ipv6/updater"
)

const (
	lookupTimeout = 30 * time.Second
	stunTimeout   = 10 * time.Second
)

var (
	configPath string
	debugFlag  bool

	rootCmd = &cobra.Command{
		Use:          "ddns-ipv6",
		Short:        "Keep Cloudflare A/AAAA records pointed at this host.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	detectCmd = &cobra.Command{
		Use:   "detect",
		Short: "Print the addresses that would be published and exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return detect(cmd.Context())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "configuration file")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "debug logging (also DEBUG=true)")
	rootCmd.AddCommand(detectCmd)
}

func main() {
	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	env, set := os.LookupEnv("DEBUG")
	debug, ok := logging.Debug(env, set, debugFlag)
	logger, err := logging.New(cfg.Log, debug)
	if err != nil {
		return nil, nil, err
	}
	undo := zap.ReplaceGlobals(logger)
	if !ok {
		logger.Warn("invalid DEBUG environment variable, defaulting to false", zap.String("DEBUG", env))
	}
	logger.Info("config loaded", zap.String("path", configPath), zap.Int("setups", len(cfg.Setups)))

	return cfg, func() {
		logger.Sync()
		undo()
	}, nil
}

func run(ctx context.Context) error {
	cfg, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ns, err := openNetns(cfg.Netns)
	if err != nil {
		return err
	}
	defer ns.Close()

	providers := make([]dns.Provider, 0, len(cfg.Setups))
	for _, s := range cfg.Setups {
		p, err := dns.NewCloudflare(s.APIToken, s.ZoneID, s.TTL, s.Proxied)
		if err != nil {
			return err
		}
		providers = append(providers, p)
	}

	var opts []updater.Option
	if cfg.Watch && cfg.IPv6Source == config.SourceNetlink {
		opts = append(opts, updater.WithWatcher(func(ctx context.Context, f func()) error {
			return netlink.Subscribe(ctx, ns, f)
		}))
	}

	u, err := updater.New(cfg, providers, ipv4Source(cfg), ipv6Source(cfg, ns), opts...)
	if err != nil {
		return err
	}
	err = u.Run(ctx)
	if ctx.Err() != nil {
		zap.L().Info("shutting down")
		return nil
	}
	return err
}

func detect(ctx context.Context) error {
	cfg, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ns, err := openNetns(cfg.Netns)
	if err != nil {
		return err
	}
	defer ns.Close()

	if ip, ok := ipv6Source(cfg, ns)(ctx); ok {
		fmt.Println("ipv6:", ip)
	} else {
		fmt.Println("ipv6: none")
	}
	if ip, ok := ipv4Source(cfg)(ctx); ok {
		fmt.Println("ipv4:", ip)
	} else {
		fmt.Println("ipv4: none")
	}
	return nil
}

func openNetns(path string) (netns.NsHandle, error) {
	if path == "" {
		return netns.None(), nil
	}
	ns, err := netns.GetFromPath(path)
	if err != nil {
		return netns.None(), fmt.Errorf("open netns %s: %w", path, err)
	}
	return ns, nil
}

func ipv4Source(cfg *config.Config) updater.Source {
	return func(ctx context.Context) (netip.Addr, bool) {
		ctx, cancel := context.WithTimeout(ctx, stunTimeout)
		defer cancel()
		ip, err := stun.IPv4(ctx, cfg.STUNServer)
		if err != nil {
			zap.L().Warn("stun ipv4 lookup", zap.Error(err))
			return netip.Addr{}, false
		}
		return ip, true
	}
}

func ipv6Source(cfg *config.Config, ns netns.NsHandle) updater.Source {
	if cfg.IPv6Source == config.SourceSTUN {
		return func(ctx context.Context) (netip.Addr, bool) {
			ctx, cancel := context.WithTimeout(ctx, stunTimeout)
			defer cancel()
			ip, err := stun.IPv6(ctx, cfg.STUNServer)
			if err != nil {
				zap.L().Warn("stun ipv6 lookup", zap.Error(err))
				return netip.Addr{}, false
			}
			return ip, true
		}
	}

	// The netlink lookup has no timeout of its own.
	return func(ctx context.Context) (netip.Addr, bool) {
		type result struct {
			ip netip.Addr
			ok bool
		}
		ch := make(chan result, 1)
		go func() {
			ip, ok := netlink.GetStableIPv6At(ns)
			ch <- result{ip, ok}
		}()

		t := time.NewTimer(lookupTimeout)
		defer t.Stop()
		select {
		case r := <-ch:
			return r.ip, r.ok
		case <-t.C:
			zap.L().Warn("netlink lookup timed out", zap.Duration("timeout", lookupTimeout))
		case <-ctx.Done():
		}
		return netip.Addr{}, false
	}
}
