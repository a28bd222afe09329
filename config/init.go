package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Конечная структура конфигурации приложения.
// Передаётся в конструкторы явно, глобального состояния нет.
type Config struct {
	Server struct {
		Address  string `mapstructure:"address"`   // 0.0.0.0
		HTTPPort string `mapstructure:"http_port"` // 8080
	} `mapstructure:"server"`

	Logging struct {
		Level  string `mapstructure:"level"`  // trace|debug|info|warning|error|fatal
		Format string `mapstructure:"format"` // text|json
		File   string `mapstructure:"file"`   // путь/префикс файла, пусто = только stdout
	} `mapstructure:"logs"`

	Registry struct {
		Driver string `mapstructure:"driver"` // "file" | "postgres" | "mysql"
		Dir    string `mapstructure:"dir"`    // каталог с <name>.json для driver=file
		DSN    string `mapstructure:"dsn"`    // для postgres/mysql
	} `mapstructure:"registry"`

	WireGuard WireGuard `mapstructure:"wireguard"`
}

type WireGuard struct {
	Interface          string   `mapstructure:"interface"`            // wg0
	Backend            string   `mapstructure:"backend"`              // "wgctrl" | "exec"
	Subnet             string   `mapstructure:"subnet"`               // 192.168.42.0/24, .1 у сервера
	Endpoint           string   `mapstructure:"endpoint"`             // host:port для клиентских конфигов
	DNS                []string `mapstructure:"dns"`                  // DNS в [Interface] клиента
	SpecificAllowedIPs []string `mapstructure:"specific_allowed_ips"` // для specific-traffic конфига
	Keepalive          int      `mapstructure:"keepalive"`
	WgBin              string   `mapstructure:"wg_bin"`
	IPBin              string   `mapstructure:"ip_bin"`
	ManageRoutes       bool     `mapstructure:"manage_routes"` // добавлять/удалять /32 маршрут пира
}

// Load читает конфиг из .env/env/файла с дефолтами.
func Load() (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("dotenv read error: %w", err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Источник файла
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "wg-webui"))
		}
		v.AddConfigPath("/etc/wg-webui")
	}

	// Чтение файла (опционально)
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	return decode(v)
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.http_port", "8080")

	// Логи: дефолты
	v.SetDefault("logs.level", "info")
	v.SetDefault("logs.format", "text")
	v.SetDefault("logs.file", "")

	// Реестр пиров: по умолчанию файлы в peer-data/
	v.SetDefault("registry.driver", "file")
	v.SetDefault("registry.dir", "peer-data")
	v.SetDefault("registry.dsn", "")

	v.SetDefault("wireguard.interface", "wg0")
	v.SetDefault("wireguard.backend", "wgctrl")
	v.SetDefault("wireguard.subnet", "192.168.42.0/24")
	v.SetDefault("wireguard.endpoint", "")
	v.SetDefault("wireguard.dns", []string{"192.168.42.1"})
	v.SetDefault("wireguard.specific_allowed_ips", []string{})
	v.SetDefault("wireguard.keepalive", 25)
	v.SetDefault("wireguard.wg_bin", "wg")
	v.SetDefault("wireguard.ip_bin", "ip")
	v.SetDefault("wireguard.manage_routes", true)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	// specific-traffic без явных сетей: только сама подсеть VPN
	if len(cfg.WireGuard.SpecificAllowedIPs) == 0 {
		cfg.WireGuard.SpecificAllowedIPs = []string{cfg.WireGuard.Subnet}
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Server.Address) == "" {
		return errors.New("server.address must not be empty")
	}
	if strings.TrimSpace(c.Server.HTTPPort) == "" {
		return errors.New("server.http_port must not be empty")
	}

	switch c.Registry.Driver {
	case "file":
		if strings.TrimSpace(c.Registry.Dir) == "" {
			return errors.New("registry.dir must not be empty for the file driver")
		}
	case "postgres", "mysql":
		if strings.TrimSpace(c.Registry.DSN) == "" {
			return fmt.Errorf("registry.dsn must be set for the %s driver", c.Registry.Driver)
		}
	default:
		return fmt.Errorf("unsupported registry.driver: %q", c.Registry.Driver)
	}

	wg := c.WireGuard
	if strings.TrimSpace(wg.Interface) == "" {
		return errors.New("wireguard.interface must not be empty")
	}
	if wg.Backend != "wgctrl" && wg.Backend != "exec" {
		return fmt.Errorf("unsupported wireguard.backend: %q", wg.Backend)
	}
	p, err := netip.ParsePrefix(wg.Subnet)
	if err != nil {
		return fmt.Errorf("wireguard.subnet: %w", err)
	}
	if !p.Addr().Is4() || p.Bits() != 24 {
		return fmt.Errorf("wireguard.subnet must be an IPv4 /24, got %s", wg.Subnet)
	}
	for _, s := range wg.SpecificAllowedIPs {
		if _, err := netip.ParsePrefix(s); err != nil {
			return fmt.Errorf("wireguard.specific_allowed_ips: %w", err)
		}
	}
	if wg.Keepalive < 0 {
		return errors.New("wireguard.keepalive must not be negative")
	}
	return nil
}
