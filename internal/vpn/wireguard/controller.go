// Package wireguard управляет живым интерфейсом WireGuard: пиры, ключи, маршруты.
// Реестр и аллокатор сюда не ходят, всё делает controller.PeerService.
package wireguard

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/config"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/ipam"
)

// ErrExternalTool — интерфейс/утилита вернули ошибку или недоступны. Такую ошибку можно повторить.
var ErrExternalTool = errors.New("external tool failure")

// ToolError — сбой внешнего инструмента (wg, ip, netlink) с выводом команды.
type ToolError struct {
	Op     string // "wg set", "netlink route replace", ...
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

func (e *ToolError) Is(target error) bool { return target == ErrExternalTool }

func toolErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ToolError{Op: op, Err: err}
}

// Controller — синхронные операции над интерфейсом.
type Controller interface {
	Interface() string
	AddPeer(ctx context.Context, publicKey, presharedKey string, addr netip.Prefix) error
	RemovePeer(ctx context.Context, publicKey string, addr netip.Prefix) error
	// ListAssignedAddresses — октеты, занятые пирами на интерфейсе сейчас.
	ListAssignedAddresses(ctx context.Context) ([]int, error)
	GenerateKeypair(ctx context.Context) (privateKey, publicKey string, err error)
	GeneratePresharedKey(ctx context.Context) (string, error)
	InterfacePublicKey(ctx context.Context) (string, error)
}

// New выбирает backend по wireguard.backend.
func New(cfg config.WireGuard, subnet ipam.Subnet) (Controller, error) {
	switch cfg.Backend {
	case "wgctrl", "":
		return NewWgctrlController(cfg.Interface, subnet, cfg.ManageRoutes), nil
	case "exec":
		return NewExecController(cfg.Interface, subnet, cfg.ManageRoutes, ExecOptions{
			WgBin: cfg.WgBin,
			IPBin: cfg.IPBin,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported wireguard backend: %s", cfg.Backend)
	}
}
