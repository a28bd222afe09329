//go:build linux

package wireguard

import (
	"errors"
	"fmt"
	"net/netip"
	"syscall"

	"github.com/vishvananda/netlink"
)

type netlinkRoutes struct{}

func (netlinkRoutes) route(ifname string, dst netip.Prefix) (*netlink.Route, error) {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("find interface %s: %w", ifname, err)
	}
	n := toIPNet(dst)
	return &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       &n,
		Scope:     netlink.SCOPE_LINK,
		Protocol:  4, // RTPROT_STATIC
	}, nil
}

func (r netlinkRoutes) Replace(ifname string, dst netip.Prefix) error {
	rt, err := r.route(ifname, dst)
	if err != nil {
		return err
	}
	return netlink.RouteReplace(rt)
}

func (r netlinkRoutes) Delete(ifname string, dst netip.Prefix) error {
	rt, err := r.route(ifname, dst)
	if err != nil {
		return err
	}
	// маршрута уже нет: не ошибка
	if err := netlink.RouteDel(rt); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}
