package models

import "time"

// PeerRecord — данные пира в реестре. Ключи неизменяемы после выдачи.
type PeerRecord struct {
	Name         string `json:"-"` // ключ реестра, в файл не пишется
	PrivateKey   string `json:"private_key"`
	IPv4Segment  int    `json:"ipv4_segment"` // последний октет в /24, 2..254
	PublicKey    string `json:"public_key"`
	PresharedKey string `json:"pre_shared_key"`
}

// PeerRow — тот же пир в БД (registry.driver = postgres|mysql).
type PeerRow struct {
	ID           uint      `gorm:"primaryKey"`
	Name         string    `gorm:"uniqueIndex;size:64;not null"`
	PrivateKey   string    `gorm:"size:64;not null"`
	PublicKey    string    `gorm:"size:64;not null"`
	PresharedKey string    `gorm:"size:64;not null"`
	IPv4Segment  int       `gorm:"uniqueIndex;not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (PeerRow) TableName() string { return "wg_peers" }

func (r PeerRow) Record() PeerRecord {
	return PeerRecord{
		Name:         r.Name,
		PrivateKey:   r.PrivateKey,
		IPv4Segment:  r.IPv4Segment,
		PublicKey:    r.PublicKey,
		PresharedKey: r.PresharedKey,
	}
}

func RowFromRecord(name string, rec PeerRecord) PeerRow {
	return PeerRow{
		Name:         name,
		PrivateKey:   rec.PrivateKey,
		PublicKey:    rec.PublicKey,
		PresharedKey: rec.PresharedKey,
		IPv4Segment:  rec.IPv4Segment,
	}
}
