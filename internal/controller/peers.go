package controller

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/ipam"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/logs"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/metrics"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/models"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/render/wgconf"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/repo"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/vpn/wireguard"
)

type Options struct {
	Subnet             ipam.Subnet
	Endpoint           string
	DNS                []string
	SpecificAllowedIPs []netip.Prefix
	Keepalive          int
	Metrics            *metrics.Metrics
}

// PeerService — добавление/удаление пиров: реестр + живой интерфейс.
// Все изменяющие операции идут под одним мьютексом: чтение адресов интерфейса,
// выбор октета, запись в реестр и настройка интерфейса не перемежаются.
type PeerService struct {
	mu    sync.Mutex
	store repo.PeerStore
	vpn   wireguard.Controller
	rec   *Reconciler
	opts  Options
}

func NewPeerService(store repo.PeerStore, vpn wireguard.Controller, opts Options) *PeerService {
	return &PeerService{
		store: store,
		vpn:   vpn,
		rec:   NewReconciler(store, vpn, opts.Metrics),
		opts:  opts,
	}
}

func (s *PeerService) observe(op string, err error) {
	s.opts.Metrics.PeerOp(op, ErrorKind(err))
}

// Add выдаёт пиру адрес и ключи, пишет запись и добавляет пира на интерфейс.
// Если интерфейс отказал, запись удаляется обратно.
func (s *PeerService) Add(ctx context.Context, name string) (models.PeerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.add(ctx, name)
	s.observe("add", err)
	return rec, err
}

func (s *PeerService) add(ctx context.Context, name string) (models.PeerRecord, error) {
	if !repo.ValidName(name) {
		return models.PeerRecord{}, fmt.Errorf("%w: %q", repo.ErrInvalidName, name)
	}
	// проверяем до генерации ключей и похода в интерфейс
	if _, err := s.store.Read(ctx, name); err == nil || errors.Is(err, repo.ErrCorruptRecord) {
		return models.PeerRecord{}, fmt.Errorf("%w: %s", repo.ErrAlreadyExists, name)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return models.PeerRecord{}, err
	}

	// адреса берём с живого интерфейса, а не из реестра: реестр может отставать
	assigned, err := s.vpn.ListAssignedAddresses(ctx)
	if err != nil {
		return models.PeerRecord{}, fmt.Errorf("list assigned addresses: %w", err)
	}
	octet, err := ipam.NextFreeAddress(assigned)
	if err != nil {
		return models.PeerRecord{}, err
	}

	priv, pub, err := s.vpn.GenerateKeypair(ctx)
	if err != nil {
		return models.PeerRecord{}, fmt.Errorf("generate keypair: %w", err)
	}
	psk, err := s.vpn.GeneratePresharedKey(ctx)
	if err != nil {
		return models.PeerRecord{}, fmt.Errorf("generate preshared key: %w", err)
	}

	rec := models.PeerRecord{
		Name:         name,
		PrivateKey:   priv,
		IPv4Segment:  octet,
		PublicKey:    pub,
		PresharedKey: psk,
	}
	if err := s.store.Create(ctx, name, rec); err != nil {
		return models.PeerRecord{}, err
	}

	log := logs.Peer(name).WithField("octet", octet)
	addr := s.opts.Subnet.Prefix(octet)
	if err := s.vpn.AddPeer(ctx, pub, psk, addr); err != nil {
		// откат выполняем даже при отменённом ctx
		if derr := s.store.Delete(context.WithoutCancel(ctx), name); derr != nil {
			log.WithError(derr).Error("rollback of registry record failed, manual reconciliation required")
			return models.PeerRecord{}, errors.Join(
				fmt.Errorf("add peer to %s: %w", s.vpn.Interface(), err),
				fmt.Errorf("rollback: %w", derr))
		}
		log.WithError(err).Warn("interface rejected peer, registry record rolled back")
		return models.PeerRecord{}, fmt.Errorf("add peer to %s: %w", s.vpn.Interface(), err)
	}

	log.WithField("addr", addr.String()).Info("peer added")
	return rec, nil
}

// Remove снимает пира с интерфейса и удаляет запись.
// Если запись удалить не удалось, пир возвращается на интерфейс.
func (s *PeerService) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.remove(ctx, name)
	s.observe("remove", err)
	return err
}

func (s *PeerService) remove(ctx context.Context, name string) error {
	rec, err := s.store.Read(ctx, name)
	if err != nil {
		return err
	}
	log := logs.Peer(name).WithField("octet", rec.IPv4Segment)
	addr := s.opts.Subnet.Prefix(rec.IPv4Segment)

	if err := s.vpn.RemovePeer(ctx, rec.PublicKey, addr); err != nil {
		return fmt.Errorf("remove peer from %s: %w", s.vpn.Interface(), err)
	}
	if err := s.store.Delete(ctx, name); err != nil {
		if aerr := s.vpn.AddPeer(context.WithoutCancel(ctx), rec.PublicKey, rec.PresharedKey, addr); aerr != nil {
			log.WithError(aerr).Error("restoring peer on interface failed, manual reconciliation required")
			return errors.Join(err, fmt.Errorf("rollback: %w", aerr))
		}
		log.WithError(err).Warn("registry delete failed, peer restored on interface")
		return err
	}

	log.Info("peer removed")
	return nil
}

func (s *PeerService) Get(ctx context.Context, name string) (models.PeerRecord, error) {
	rec, err := s.store.Read(ctx, name)
	s.observe("read", err)
	return rec, err
}

func (s *PeerService) List(ctx context.Context) ([]string, error) {
	names, err := s.store.List(ctx)
	s.observe("list", err)
	if err == nil {
		s.opts.Metrics.SetPeers(len(names))
	}
	return names, err
}

// ClientConfig рендерит клиентский конфиг пира; ключ сервера берётся с интерфейса.
func (s *PeerService) ClientConfig(ctx context.Context, name string, mode wgconf.Mode) ([]byte, error) {
	rec, err := s.store.Read(ctx, name)
	if err != nil {
		s.observe("config", err)
		return nil, err
	}
	serverKey, err := s.vpn.InterfacePublicKey(ctx)
	if err != nil {
		err = fmt.Errorf("interface public key: %w", err)
		s.observe("config", err)
		return nil, err
	}
	s.observe("config", nil)
	return wgconf.Render(wgconf.ForPeer(rec, wgconf.Server{
		PublicKey:          serverKey,
		Endpoint:           s.opts.Endpoint,
		DNS:                s.opts.DNS,
		SpecificAllowedIPs: s.opts.SpecificAllowedIPs,
		Keepalive:          s.opts.Keepalive,
		Subnet:             s.opts.Subnet,
	}, mode)), nil
}

// Reconcile сравнивает реестр с интерфейсом под тем же мьютексом, что и Add/Remove.
func (s *PeerService) Reconcile(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Reconcile(ctx)
}
