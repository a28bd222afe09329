//go:build !linux

package wireguard

import (
	"fmt"
	"net/netip"
	"runtime"
)

type netlinkRoutes struct{}

func (netlinkRoutes) Replace(string, netip.Prefix) error {
	return fmt.Errorf("route management is not supported on %s; set wireguard.manage_routes=false", runtime.GOOS)
}

func (netlinkRoutes) Delete(string, netip.Prefix) error {
	return fmt.Errorf("route management is not supported on %s; set wireguard.manage_routes=false", runtime.GOOS)
}
