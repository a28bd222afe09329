package repo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/ipam"
	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/models"
)

var (
	ErrInvalidName   = errors.New("invalid peer name")
	ErrAlreadyExists = errors.New("peer already exists")
	ErrNotFound      = errors.New("peer not found")
	ErrCorruptRecord = errors.New("corrupt peer record")
)

// PeerStore — реестр пиров: имя -> ключи и октет адреса.
// Реестр лишь зеркалит состояние интерфейса WireGuard, источником правды он не является.
type PeerStore interface {
	// Create не перезаписывает существующую запись: ErrAlreadyExists.
	Create(ctx context.Context, name string, rec models.PeerRecord) error
	Read(ctx context.Context, name string) (models.PeerRecord, error)
	// List молча пропускает записи с именем не по шаблону.
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

var nameRe = regexp.MustCompile(`^[a-z0-9-]+$`)

// MaxNameLen совпадает с размером колонки name в wg_peers и держит имя файла в пределах NAME_MAX.
const MaxNameLen = 64

// ValidName — имя пира: непустое, [a-z0-9-]+, не длиннее MaxNameLen. Имя же служит именем файла.
func ValidName(name string) bool { return len(name) <= MaxNameLen && nameRe.MatchString(name) }

func checkName(name string) error {
	if !ValidName(name) {
		if len(name) > MaxNameLen {
			return fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLen)
		}
		return fmt.Errorf("%w: %q (allowed: a-z, 0-9, -)", ErrInvalidName, name)
	}
	return nil
}

// checkRecord проверяет, что запись полная. Ключи не разбираем: это непрозрачные строки.
func checkRecord(rec models.PeerRecord) error {
	switch {
	case rec.PrivateKey == "":
		return fmt.Errorf("%w: private_key is empty", ErrCorruptRecord)
	case rec.PublicKey == "":
		return fmt.Errorf("%w: public_key is empty", ErrCorruptRecord)
	case rec.PresharedKey == "":
		return fmt.Errorf("%w: pre_shared_key is empty", ErrCorruptRecord)
	case rec.IPv4Segment < ipam.FirstPeerOctet || rec.IPv4Segment > ipam.LastPeerOctet:
		return fmt.Errorf("%w: ipv4_segment %d out of range [%d,%d]",
			ErrCorruptRecord, rec.IPv4Segment, ipam.FirstPeerOctet, ipam.LastPeerOctet)
	}
	return nil
}
