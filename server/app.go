package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/config"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/controller"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/health"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/ipam"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/logs"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/metrics"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/middleware"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/repo"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/vpn/wireguard"
)

type App struct {
	cfg        *config.Config
	db         *gorm.DB
	Store      repo.PeerStore
	VPN        wireguard.Controller
	Peers      *controller.PeerService
	Metrics    *metrics.Metrics
	Router     *mux.Router
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// Initialize собирает зависимости. Используется и сервером, и CLI-командами.
func (a *App) Initialize(cfg *config.Config) error {
	a.cfg = cfg

	/* 1) Логи */
	if err := logs.Init(logs.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}); err != nil {
		return fmt.Errorf("logs init: %w", err)
	}

	/* 2) Реестр: файлы или БД */
	store, d, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	a.Store, a.db = store, d

	/* 3) Интерфейс WireGuard */
	subnet, err := ipam.ParseSubnet(cfg.WireGuard.Subnet)
	if err != nil {
		return err
	}
	vpn, err := wireguard.New(cfg.WireGuard, subnet)
	if err != nil {
		return err
	}
	a.VPN = vpn

	/* 4) Сервис пиров + метрики */
	a.Metrics = metrics.New()
	opts, err := peerOptions(cfg.WireGuard, subnet, a.Metrics)
	if err != nil {
		return err
	}
	a.Peers = controller.NewPeerService(a.Store, a.VPN, opts)

	/* 5) Router + middleware */
	a.Router = mux.NewRouter().StrictSlash(true)
	a.Router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		middleware.LoggerMW(a.Metrics),
	)

	/* 6) Health + metrics */
	health.RegisterRoutesWithChecks(a.Router, readinessChecks(a.Store, a.VPN)...)
	a.Router.Handle("/metrics", a.Metrics.Handler()).Methods(http.MethodGet)

	_ = a.Router.Walk(func(rt *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		if len(methods) == 0 {
			methods = []string{"ANY"}
		}
		logs.Logger.Debugf("route: %-6v %s", methods, path)
		return nil
	})
	return nil
}

// Close освобождает соединение с БД, если оно было открыто.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (a *App) Run() error {
	if a.Router == nil || a.cfg == nil {
		return fmt.Errorf("server not initialized")
	}

	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	a.ctx, a.cancel = context.WithCancel(context.Background())
	defer a.cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case s := <-sigs:
			logs.Logger.Infof("shutdown signal: %s", s)
			a.cancel()
		case <-a.ctx.Done():
		}
	}()

	// Сверка реестра с интерфейсом: только отчёт в лог, ничего не чиним
	if rep, err := a.Peers.Reconcile(a.ctx); err != nil {
		logs.Logger.WithError(err).Warn("startup reconcile failed")
	} else if rep.Clean() {
		logs.Logger.Infof("registry consistent with %s: %d peers", rep.Interface, rep.Registered)
	}

	a.httpServer = &http.Server{
		Addr:              bind,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var runErr error
	select {
	case <-a.ctx.Done():
	case err := <-errc:
		runErr = fmt.Errorf("http server: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logs.Logger.Errorf("http shutdown: %v", err)
	}
	return runErr
}
