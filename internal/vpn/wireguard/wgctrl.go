package wireguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/ipam"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/logs"
)

// deviceClient — то, что нужно от *wgctrl.Client.
type deviceClient interface {
	Device(name string) (*wgtypes.Device, error)
	ConfigureDevice(name string, cfg wgtypes.Config) error
	Close() error
}

// routeTable — маршруты /32 пиров через интерфейс (аналог `ip -4 route ...`).
type routeTable interface {
	Replace(ifname string, dst netip.Prefix) error
	Delete(ifname string, dst netip.Prefix) error
}

// WgctrlController ходит в ядро через netlink (wgctrl), без внешних бинарников.
type WgctrlController struct {
	iface        string
	subnet       ipam.Subnet
	manageRoutes bool

	dial   func() (deviceClient, error)
	routes routeTable
}

func NewWgctrlController(iface string, subnet ipam.Subnet, manageRoutes bool) *WgctrlController {
	return &WgctrlController{
		iface:        iface,
		subnet:       subnet,
		manageRoutes: manageRoutes,
		dial: func() (deviceClient, error) {
			return wgctrl.New()
		},
		routes: netlinkRoutes{},
	}
}

func (c *WgctrlController) Interface() string { return c.iface }

// withClient открывает клиент на одну операцию и закрывает его.
func (c *WgctrlController) withClient(ctx context.Context, op string, fn func(deviceClient) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cl, err := c.dial()
	if err != nil {
		return toolErr("open wgctrl", err)
	}
	defer cl.Close()
	return toolErr(op, fn(cl))
}

func (c *WgctrlController) AddPeer(ctx context.Context, publicKey, presharedKey string, addr netip.Prefix) error {
	pub, err := ParseKey(publicKey)
	if err != nil {
		return err
	}
	psk, err := ParseKey(presharedKey)
	if err != nil {
		return err
	}
	peer := wgtypes.PeerConfig{
		PublicKey:         pub,
		PresharedKey:      &psk,
		ReplaceAllowedIPs: true,
		AllowedIPs:        []net.IPNet{toIPNet(addr)},
	}
	err = c.withClient(ctx, "configure device", func(cl deviceClient) error {
		return cl.ConfigureDevice(c.iface, wgtypes.Config{Peers: []wgtypes.PeerConfig{peer}})
	})
	if err != nil {
		return err
	}
	if !c.manageRoutes {
		return nil
	}
	if rerr := toolErr("netlink route replace", c.routes.Replace(c.iface, addr)); rerr != nil {
		// без маршрута пир бесполезен: снимаем его, чтобы интерфейс не разошёлся с реестром
		if uerr := c.removeOnly(context.WithoutCancel(ctx), pub); uerr != nil {
			return errors.Join(rerr, fmt.Errorf("undo peer: %w", uerr))
		}
		return rerr
	}
	return nil
}

func (c *WgctrlController) removeOnly(ctx context.Context, pub wgtypes.Key) error {
	return c.withClient(ctx, "configure device", func(cl deviceClient) error {
		return cl.ConfigureDevice(c.iface, wgtypes.Config{
			Peers: []wgtypes.PeerConfig{{PublicKey: pub, Remove: true}},
		})
	})
}

func (c *WgctrlController) RemovePeer(ctx context.Context, publicKey string, addr netip.Prefix) error {
	pub, err := ParseKey(publicKey)
	if err != nil {
		return err
	}
	if err := c.removeOnly(ctx, pub); err != nil {
		return err
	}
	// пир уже снят; оставшийся маршрут никуда не ведёт, поэтому его ошибка не фатальна
	if c.manageRoutes {
		if err := c.routes.Delete(c.iface, addr); err != nil {
			logs.Logger.WithError(err).WithField("addr", addr.String()).Warn("route cleanup failed")
		}
	}
	return nil
}

func (c *WgctrlController) ListAssignedAddresses(ctx context.Context) ([]int, error) {
	var allowed []netip.Prefix
	err := c.withClient(ctx, "read device", func(cl deviceClient) error {
		dev, err := cl.Device(c.iface)
		if err != nil {
			return err
		}
		for _, p := range dev.Peers {
			for _, n := range p.AllowedIPs {
				if pfx, ok := fromIPNet(n); ok {
					allowed = append(allowed, pfx)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c.subnet.PeerOctets(allowed), nil
}

func (c *WgctrlController) GenerateKeypair(ctx context.Context) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	return GenerateKeypair()
}

func (c *WgctrlController) GeneratePresharedKey(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return GeneratePresharedKey()
}

func (c *WgctrlController) InterfacePublicKey(ctx context.Context) (string, error) {
	var key string
	err := c.withClient(ctx, "read device", func(cl deviceClient) error {
		dev, err := cl.Device(c.iface)
		if err != nil {
			return err
		}
		key = dev.PublicKey.String()
		return nil
	})
	return key, err
}

func toIPNet(p netip.Prefix) net.IPNet {
	return net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), p.Addr().BitLen()),
	}
}

func fromIPNet(n net.IPNet) (netip.Prefix, bool) {
	addr, ok := netip.AddrFromSlice(n.IP)
	if !ok {
		return netip.Prefix{}, false
	}
	addr = addr.Unmap()
	ones, bits := n.Mask.Size()
	if bits == 0 {
		return netip.Prefix{}, false
	}
	if addr.Is4() && bits == 128 {
		ones -= 96
	}
	return netip.PrefixFrom(addr, ones), true
}
