package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/config"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/controller"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/logs"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/render/wgconf"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/server"
)

const usage = `usage: wg-webui [command]

commands:
  serve                           health/metrics HTTP server (default)
  add <name>                      register a peer and add it to the interface
  remove <name>                   remove a peer from the interface and the registry
  list                            list registered peer names
  show <name> [all|specific]      print the client config
  export <name> <dir>             write both client configs into dir
  reconcile                       compare the registry with the interface (exit 1 on drift)
`

var errUsage = errors.New("bad usage")

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	app := &server.App{}
	if err := app.Initialize(cfg); err != nil {
		logs.Logger.Fatalf("init: %v", err)
	}
	defer app.Close()

	args := os.Args[1:]
	if len(args) == 0 || args[0] == "serve" {
		if code := serve(app); code != 0 {
			os.Exit(code)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runCommand(ctx, app.Peers, os.Stdout, args); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		logs.Logger.WithField("kind", controller.ErrorKind(err)).Error(err)
		stop()
		app.Close()
		os.Exit(1)
	}
}

// serve закрывает ресурсы App сам: os.Exit не выполняет отложенные вызовы.
func serve(app *server.App) int {
	if err := app.Run(); err != nil {
		logs.Logger.Error(err)
		if cerr := app.Close(); cerr != nil {
			logs.Logger.WithError(cerr).Warn("close")
		}
		return 1
	}
	return 0
}

func runCommand(ctx context.Context, peers *controller.PeerService, out io.Writer, args []string) error {
	cmd, rest := args[0], args[1:]
	switch {
	case cmd == "add" && len(rest) == 1:
		rec, err := peers.Add(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\toctet=%d\tpublic_key=%s\n", rec.Name, rec.IPv4Segment, rec.PublicKey)
		return nil

	case cmd == "remove" && len(rest) == 1:
		return peers.Remove(ctx, rest[0])

	case cmd == "list" && len(rest) == 0:
		names, err := peers.List(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(out, n)
		}
		return nil

	case cmd == "show" && (len(rest) == 1 || len(rest) == 2):
		mode := wgconf.AllTraffic
		if len(rest) == 2 {
			m, err := wgconf.ParseMode(rest[1])
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			mode = m
		}
		conf, err := peers.ClientConfig(ctx, rest[0], mode)
		if err != nil {
			return err
		}
		_, err = out.Write(conf)
		return err

	case cmd == "export" && len(rest) == 2:
		return exportConfigs(ctx, peers, rest[0], rest[1], out)

	case cmd == "reconcile" && len(rest) == 0:
		rep, err := peers.Reconcile(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
		if !rep.Clean() {
			return errors.New("registry drifted from interface state")
		}
		return nil
	}
	return errUsage
}

// exportConfigs пишет all-traffic и specific-traffic конфиги пира, файлы доступны только владельцу.
// Уже существующие файлы не перезаписываются.
func exportConfigs(ctx context.Context, peers *controller.PeerService, name, dir string, out io.Writer) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	for _, mode := range []wgconf.Mode{wgconf.AllTraffic, wgconf.SpecificTraffic} {
		conf, err := peers.ClientConfig(ctx, name, mode)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, wgconf.FileName(name, mode))
		if err := writeNewFile(path, conf); err != nil {
			return err
		}
		fmt.Fprintln(out, path)
	}
	return nil
}

// writeNewFile не трогает существующий файл: его права могли быть шире 0600.
func writeNewFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
