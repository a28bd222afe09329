// Package ipam выдаёт адреса пиров внутри фиксированной /24.
package ipam

import (
	"errors"
	"fmt"
	"net/netip"
)

const (
	GatewayOctet   = 1 // адрес сервера
	FirstPeerOctet = 2
	LastPeerOctet  = 254
)

var ErrAddressSpaceExhausted = errors.New("address space exhausted")

// NextFreeAddress возвращает max(assigned)+1, либо FirstPeerOctet для пустого набора.
// Освободившиеся адреса не переиспользуются: дыры ниже максимума не ищем.
func NextFreeAddress(assigned []int) (int, error) {
	if len(assigned) == 0 {
		return FirstPeerOctet, nil
	}
	highest := assigned[0]
	for _, o := range assigned[1:] {
		if o > highest {
			highest = o
		}
	}
	next := highest + 1
	if next < FirstPeerOctet {
		next = FirstPeerOctet
	}
	if next > LastPeerOctet {
		return 0, fmt.Errorf("%w: highest assigned octet is %d", ErrAddressSpaceExhausted, highest)
	}
	return next, nil
}

// Subnet — IPv4 /24, в которой живут пиры.
type Subnet struct {
	prefix netip.Prefix
}

func ParseSubnet(cidr string) (Subnet, error) {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return Subnet{}, fmt.Errorf("parse subnet: %w", err)
	}
	if !p.Addr().Is4() || p.Bits() != 24 {
		return Subnet{}, fmt.Errorf("subnet must be an IPv4 /24, got %s", cidr)
	}
	return Subnet{prefix: p.Masked()}, nil
}

func MustParseSubnet(cidr string) Subnet {
	s, err := ParseSubnet(cidr)
	if err != nil {
		panic(err)
	}
	return s
}

// Addr — адрес хоста с последним октетом octet.
func (s Subnet) Addr(octet int) netip.Addr {
	b := s.prefix.Addr().As4()
	b[3] = byte(octet)
	return netip.AddrFrom4(b)
}

// Prefix — /32 для AllowedIPs на стороне сервера.
func (s Subnet) Prefix(octet int) netip.Prefix {
	return netip.PrefixFrom(s.Addr(octet), 32)
}

func (s Subnet) Gateway() netip.Addr { return s.Addr(GatewayOctet) }

// Octet возвращает последний октет addr, если адрес лежит в подсети.
func (s Subnet) Octet(addr netip.Addr) (int, bool) {
	addr = addr.Unmap()
	if !s.prefix.Contains(addr) {
		return 0, false
	}
	return int(addr.As4()[3]), true
}

// PeerOctets выбирает из AllowedIPs интерфейса октеты пиров: только /32 внутри подсети.
func (s Subnet) PeerOctets(allowed []netip.Prefix) []int {
	out := make([]int, 0, len(allowed))
	for _, p := range allowed {
		if !p.IsSingleIP() {
			continue
		}
		if o, ok := s.Octet(p.Addr()); ok {
			out = append(out, o)
		}
	}
	return out
}

func (s Subnet) String() string { return s.prefix.String() }

func (s Subnet) IsZero() bool { return !s.prefix.IsValid() }
