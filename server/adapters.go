package server

import (
	"context"
	"fmt"
	"net/netip"

	"gorm.io/gorm"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/config"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/controller"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/db"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/health"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/ipam"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/metrics"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/repo"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/vpn/wireguard"
)

// openRegistry выбирает реализацию реестра по registry.driver.
// Для БД возвращает и *gorm.DB, чтобы readiness могла его пинговать.
func openRegistry(cfg *config.Config) (repo.PeerStore, *gorm.DB, error) {
	switch cfg.Registry.Driver {
	case "", "file":
		s, err := repo.NewFilePeerStore(cfg.Registry.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case "postgres", "mysql":
		d, err := db.Open(cfg.Registry.Driver, cfg.Registry.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db open failed: %w", err)
		}
		return repo.NewDBPeerStore(d), d, nil
	default:
		return nil, nil, fmt.Errorf("unsupported registry driver: %q", cfg.Registry.Driver)
	}
}

func peerOptions(wg config.WireGuard, subnet ipam.Subnet, m *metrics.Metrics) (controller.Options, error) {
	opts := controller.Options{
		Subnet:    subnet,
		Endpoint:  wg.Endpoint,
		DNS:       wg.DNS,
		Keepalive: wg.Keepalive,
		Metrics:   m,
	}
	for _, s := range wg.SpecificAllowedIPs {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return opts, fmt.Errorf("wireguard.specific_allowed_ips: %w", err)
		}
		opts.SpecificAllowedIPs = append(opts.SpecificAllowedIPs, p.Masked())
	}
	return opts, nil
}

// readinessChecks: реестр читается, интерфейс отвечает, БД (если есть) пингуется.
func readinessChecks(store repo.PeerStore, vpn wireguard.Controller) []health.Check {
	checks := []health.Check{
		{Name: "registry", Fn: func(ctx context.Context) error {
			_, err := store.List(ctx)
			return err
		}},
		{Name: "wireguard", Fn: func(ctx context.Context) error {
			_, err := vpn.InterfacePublicKey(ctx)
			return err
		}},
	}
	if p, ok := store.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.Check{Name: "database", Fn: p.Ping})
	}
	return checks
}
