// Package wgconf рендерит клиентские конфиги WireGuard из типизированной структуры.
package wgconf

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/ipam"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/models"
)

type Mode int

const (
	AllTraffic      Mode = iota // весь трафик клиента через VPN
	SpecificTraffic             // только заданные сети
)

func (m Mode) String() string {
	switch m {
	case AllTraffic:
		return "all-traffic"
	case SpecificTraffic:
		return "specific-traffic"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "all-traffic", "all", "":
		return AllTraffic, nil
	case "specific-traffic", "specific":
		return SpecificTraffic, nil
	}
	return 0, fmt.Errorf("unknown config mode %q (want all-traffic|specific-traffic)", s)
}

// ClientConfig — содержимое клиентского .conf.
type ClientConfig struct {
	PrivateKey string
	Address    netip.Prefix
	DNS        []string

	ServerPublicKey string
	PresharedKey    string
	Endpoint        string
	AllowedIPs      []netip.Prefix
	Keepalive       int
}

// Server — общие для всех клиентов параметры сервера.
type Server struct {
	PublicKey          string
	Endpoint           string
	DNS                []string
	SpecificAllowedIPs []netip.Prefix
	Keepalive          int
	Subnet             ipam.Subnet
}

var allTraffic = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/0"),
	netip.MustParsePrefix("::/0"),
}

// ForPeer собирает конфиг пира для выбранного режима.
func ForPeer(rec models.PeerRecord, srv Server, mode Mode) ClientConfig {
	allowed := allTraffic
	if mode == SpecificTraffic {
		allowed = srv.SpecificAllowedIPs
	}
	return ClientConfig{
		PrivateKey:      rec.PrivateKey,
		Address:         srv.Subnet.Prefix(rec.IPv4Segment),
		DNS:             srv.DNS,
		ServerPublicKey: srv.PublicKey,
		PresharedKey:    rec.PresharedKey,
		Endpoint:        srv.Endpoint,
		AllowedIPs:      allowed,
		Keepalive:       srv.Keepalive,
	}
}

// Render — чистая функция, без обращений к диску и к wg.
func Render(c ClientConfig) []byte {
	var b strings.Builder
	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", c.PrivateKey)
	fmt.Fprintf(&b, "Address = %s\n", c.Address)
	if len(c.DNS) > 0 {
		fmt.Fprintf(&b, "DNS = %s\n", strings.Join(c.DNS, ", "))
	}

	b.WriteString("\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", c.ServerPublicKey)
	if c.PresharedKey != "" {
		fmt.Fprintf(&b, "PresharedKey = %s\n", c.PresharedKey)
	}
	if c.Endpoint != "" {
		fmt.Fprintf(&b, "Endpoint = %s\n", c.Endpoint)
	}
	if len(c.AllowedIPs) > 0 {
		s := make([]string, len(c.AllowedIPs))
		for i, p := range c.AllowedIPs {
			s[i] = p.String()
		}
		fmt.Fprintf(&b, "AllowedIPs = %s\n", strings.Join(s, ", "))
	}
	if c.Keepalive > 0 {
		fmt.Fprintf(&b, "PersistentKeepalive = %d\n", c.Keepalive)
	}
	return []byte(b.String())
}

// FileName — имя файла конфига: alice-all-traffic.conf.
func FileName(peer string, mode Mode) string {
	return peer + "-" + mode.String() + ".conf"
}
