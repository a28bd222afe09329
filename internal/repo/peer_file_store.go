package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/models"
)

const recordExt = ".json"

// FilePeerStore хранит по файлу <dir>/<name>.json на пира (0600, каталог 0700).
type FilePeerStore struct{ dir string }

func NewFilePeerStore(dir string) (*FilePeerStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create peer data dir: %w", err)
	}
	return &FilePeerStore{dir: dir}, nil
}

func (s *FilePeerStore) Dir() string { return s.dir }

func (s *FilePeerStore) path(name string) string {
	return filepath.Join(s.dir, name+recordExt)
}

// формат файла: все четыре поля обязательны
type fileRecord struct {
	PrivateKey   *string `json:"private_key"`
	IPv4Segment  *int    `json:"ipv4_segment"`
	PublicKey    *string `json:"public_key"`
	PresharedKey *string `json:"pre_shared_key"`
}

// Create пишет запись во временный файл и затем делает link на итоговое имя:
// link не перезаписывает существующий файл, а читатель видит либо всю запись, либо ничего.
func (s *FilePeerStore) Create(ctx context.Context, name string, rec models.PeerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	if err := checkRecord(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode peer %s: %w", name, err)
	}

	// CreateTemp создаёт файл с правами 0600
	tmp, err := os.CreateTemp(s.dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp record: %w", err)
	}

	if err := os.Link(tmp.Name(), s.path(name)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		}
		return fmt.Errorf("store peer %s: %w", name, err)
	}
	return s.syncDir()
}

func (s *FilePeerStore) Read(ctx context.Context, name string) (models.PeerRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.PeerRecord{}, err
	}
	if err := checkName(name); err != nil {
		return models.PeerRecord{}, err
	}
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.PeerRecord{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return models.PeerRecord{}, fmt.Errorf("read peer %s: %w", name, err)
	}
	return decodeRecord(name, data)
}

func decodeRecord(name string, data []byte) (models.PeerRecord, error) {
	var fr fileRecord
	// Unmarshal отвергает и мусор после JSON-объекта
	if err := json.Unmarshal(data, &fr); err != nil {
		return models.PeerRecord{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, name, err)
	}
	if fr.PrivateKey == nil || fr.IPv4Segment == nil || fr.PublicKey == nil || fr.PresharedKey == nil {
		return models.PeerRecord{}, fmt.Errorf("%w: %s: missing fields", ErrCorruptRecord, name)
	}
	rec := models.PeerRecord{
		Name:         name,
		PrivateKey:   *fr.PrivateKey,
		IPv4Segment:  *fr.IPv4Segment,
		PublicKey:    *fr.PublicKey,
		PresharedKey: *fr.PresharedKey,
	}
	if err := checkRecord(rec); err != nil {
		return models.PeerRecord{}, fmt.Errorf("%s: %w", name, err)
	}
	return rec, nil
}

func (s *FilePeerStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list peer data dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		stem, ok := strings.CutSuffix(e.Name(), recordExt)
		if !ok || !ValidName(stem) {
			continue
		}
		names = append(names, stem)
	}
	sort.Strings(names)
	return names, nil
}

// Delete ничего не трогает на диске, если записи нет.
func (s *FilePeerStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	p := s.path(name)
	if _, err := os.Lstat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("stat peer %s: %w", name, err)
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("delete peer %s: %w", name, err)
	}
	return s.syncDir()
}

func (s *FilePeerStore) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return fmt.Errorf("open peer data dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync peer data dir: %w", err)
	}
	return nil
}
