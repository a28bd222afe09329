package wireguard

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os/exec"
	"strings"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/ipam"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/logs"
)

// Runner запускает внешнюю команду и возвращает её stdout.
type Runner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

// CmdError — команда завершилась с ошибкой; Stderr — её вывод.
type CmdError struct {
	Err    error
	Stderr string
}

func (e *CmdError) Error() string { return e.Err.Error() }
func (e *CmdError) Unwrap() error { return e.Err }

type osRunner struct{}

func (osRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &CmdError{Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}
	return stdout.Bytes(), nil
}

type ExecOptions struct {
	WgBin  string // wg
	IPBin  string // ip
	Runner Runner // nil: настоящий exec
}

// ExecController вызывает `wg` и `ip`, как это делал бы администратор руками.
type ExecController struct {
	iface        string
	subnet       ipam.Subnet
	manageRoutes bool
	wg, ip       string
	run          Runner
}

func NewExecController(iface string, subnet ipam.Subnet, manageRoutes bool, opts ExecOptions) *ExecController {
	c := &ExecController{
		iface:        iface,
		subnet:       subnet,
		manageRoutes: manageRoutes,
		wg:           opts.WgBin,
		ip:           opts.IPBin,
		run:          opts.Runner,
	}
	if c.wg == "" {
		c.wg = "wg"
	}
	if c.ip == "" {
		c.ip = "ip"
	}
	if c.run == nil {
		c.run = osRunner{}
	}
	return c
}

func (c *ExecController) Interface() string { return c.iface }

// exec — запуск с оборачиванием в ToolError; возвращает stdout без хвостовых пробелов.
func (c *ExecController) exec(ctx context.Context, stdin []byte, name string, args ...string) (string, error) {
	out, err := c.run.Run(ctx, stdin, name, args...)
	if err != nil {
		te := &ToolError{Op: name + " " + firstArgs(args), Err: err}
		var ce *CmdError
		if errors.As(err, &ce) {
			te.Output = ce.Stderr
		}
		return "", te
	}
	return strings.TrimSpace(string(out)), nil
}

func firstArgs(args []string) string {
	if len(args) > 2 {
		args = args[:2]
	}
	return strings.Join(args, " ")
}

func (c *ExecController) GenerateKeypair(ctx context.Context) (string, string, error) {
	priv, err := c.exec(ctx, nil, c.wg, "genkey")
	if err != nil {
		return "", "", err
	}
	pub, err := c.exec(ctx, []byte(priv+"\n"), c.wg, "pubkey")
	if err != nil {
		return "", "", err
	}
	return priv, pub, nil
}

func (c *ExecController) GeneratePresharedKey(ctx context.Context) (string, error) {
	return c.exec(ctx, nil, c.wg, "genpsk")
}

func (c *ExecController) InterfacePublicKey(ctx context.Context) (string, error) {
	return c.exec(ctx, nil, c.wg, "show", c.iface, "public-key")
}

// AddPeer: psk передаём через stdin, чтобы он не светился в списке процессов.
func (c *ExecController) AddPeer(ctx context.Context, publicKey, presharedKey string, addr netip.Prefix) error {
	_, err := c.exec(ctx, []byte(presharedKey+"\n"), c.wg, "set", c.iface,
		"peer", publicKey,
		"preshared-key", "/dev/stdin",
		"allowed-ips", addr.String())
	if err != nil {
		return err
	}
	if !c.manageRoutes {
		return nil
	}
	if _, rerr := c.exec(ctx, nil, c.ip, "-4", "route", "replace", addr.String(), "dev", c.iface); rerr != nil {
		// снимаем пира обратно, иначе он останется на интерфейсе без записи в реестре
		if _, uerr := c.exec(context.WithoutCancel(ctx), nil, c.wg, "set", c.iface, "peer", publicKey, "remove"); uerr != nil {
			return errors.Join(rerr, fmt.Errorf("undo peer: %w", uerr))
		}
		return rerr
	}
	return nil
}

func (c *ExecController) RemovePeer(ctx context.Context, publicKey string, addr netip.Prefix) error {
	if _, err := c.exec(ctx, nil, c.wg, "set", c.iface, "peer", publicKey, "remove"); err != nil {
		return err
	}
	if !c.manageRoutes {
		return nil
	}
	// пир уже снят: ошибка удаления маршрута только логируется
	_, err := c.exec(ctx, nil, c.ip, "-4", "route", "del", addr.String(), "dev", c.iface)
	var te *ToolError
	switch {
	case err == nil:
	case errors.As(err, &te) && strings.Contains(te.Output, "No such process"):
		logs.Logger.WithField("addr", addr.String()).Debug("route already gone")
	default:
		logs.Logger.WithError(err).WithField("addr", addr.String()).Warn("route cleanup failed")
	}
	return nil
}

// ListAssignedAddresses разбирает `wg show <if> allowed-ips`:
// "<pubkey>\t10.0.0.2/32 10.0.0.3/32" или "<pubkey>\t(none)".
func (c *ExecController) ListAssignedAddresses(ctx context.Context) ([]int, error) {
	out, err := c.exec(ctx, nil, c.wg, "show", c.iface, "allowed-ips")
	if err != nil {
		return nil, err
	}
	allowed, err := parseAllowedIPs(out)
	if err != nil {
		return nil, &ToolError{Op: c.wg + " show allowed-ips", Err: err}
	}
	return c.subnet.PeerOctets(allowed), nil
}

func parseAllowedIPs(out string) ([]netip.Prefix, error) {
	var res []netip.Prefix
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		for _, f := range fields[1:] {
			if f == "(none)" {
				continue
			}
			p, err := netip.ParsePrefix(f)
			if err != nil {
				return nil, fmt.Errorf("unexpected allowed-ips entry %q: %w", f, err)
			}
			res = append(res, p)
		}
	}
	return res, sc.Err()
}
