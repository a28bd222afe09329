package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/luuk00000000000000000000000000000000000/wg-webui/internal/models"
)

// DBPeerStore — реестр в postgres/mysql. Уникальность имени и октета держат индексы.
type DBPeerStore struct{ db *gorm.DB }

func NewDBPeerStore(db *gorm.DB) *DBPeerStore { return &DBPeerStore{db: db} }

func (s *DBPeerStore) Create(ctx context.Context, name string, rec models.PeerRecord) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := checkRecord(rec); err != nil {
		return err
	}
	row := models.RowFromRecord(name, rec)
	row.CreatedAt = time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.PeerRow{}).Where("name = ?", name).Count(&n).Error; err != nil {
			return fmt.Errorf("lookup peer %s: %w", name, err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		}
		if err := tx.Create(&row).Error; err != nil {
			// гонка с другим процессом или занятый октет
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s (name or address taken)", ErrAlreadyExists, name)
			}
			return fmt.Errorf("insert peer %s: %w", name, err)
		}
		return nil
	})
}

func (s *DBPeerStore) Read(ctx context.Context, name string) (models.PeerRecord, error) {
	if err := checkName(name); err != nil {
		return models.PeerRecord{}, err
	}
	var row models.PeerRow
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PeerRecord{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return models.PeerRecord{}, fmt.Errorf("read peer %s: %w", name, err)
	}
	rec := row.Record()
	if err := checkRecord(rec); err != nil {
		return models.PeerRecord{}, fmt.Errorf("%s: %w", name, err)
	}
	return rec, nil
}

func (s *DBPeerStore) List(ctx context.Context) ([]string, error) {
	var all []string
	if err := s.db.WithContext(ctx).Model(&models.PeerRow{}).
		Order("name asc").Pluck("name", &all).Error; err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	return filterNames(all), nil
}

func (s *DBPeerStore) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&models.PeerRow{})
	if res.Error != nil {
		return fmt.Errorf("delete peer %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// Ping — для /readyz.
func (s *DBPeerStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func filterNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		if ValidName(n) {
			out = append(out, n)
		}
	}
	return out
}
