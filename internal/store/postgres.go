package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type savedSessionRow struct {
	ID      string `gorm:"primaryKey"`
	Code    string `gorm:"index"`
	Mode    string
	SavedAt time.Time
	Payload []byte `gorm:"type:jsonb"`
}

func (savedSessionRow) TableName() string { return "saved_sessions" }

type exportRow struct {
	ID         string `gorm:"primaryKey"`
	Code       string `gorm:"index"`
	ExportedAt time.Time
	Payload    []byte `gorm:"type:jsonb"`
}

func (exportRow) TableName() string { return "result_exports" }

// Postgres keeps snapshots in two jsonb tables.
type Postgres struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&savedSessionRow{}, &exportRow{}); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) SaveSnapshot(ctx context.Context, rec SavedRecord) error {
	row := savedSessionRow{
		ID:      rec.ID,
		Code:    rec.Code,
		Mode:    rec.Mode,
		SavedAt: rec.SavedAt,
		Payload: rec.Payload,
	}
	return p.db.WithContext(ctx).Save(&row).Error
}

func (p *Postgres) ListSnapshots(ctx context.Context) ([]SavedSummary, error) {
	var rows []savedSessionRow
	if err := p.db.WithContext(ctx).Order("saved_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]SavedSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, SavedSummary{
			ID: r.ID, Code: r.Code, Mode: r.Mode, SavedAt: r.SavedAt, Size: len(r.Payload),
		})
	}
	return out, nil
}

func (p *Postgres) LoadSnapshot(ctx context.Context, id string) (SavedRecord, error) {
	var row savedSessionRow
	err := p.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SavedRecord{}, ErrNotFound
	}
	if err != nil {
		return SavedRecord{}, err
	}
	return SavedRecord{
		ID: row.ID, Code: row.Code, Mode: row.Mode, SavedAt: row.SavedAt, Payload: row.Payload,
	}, nil
}

func (p *Postgres) SaveExport(ctx context.Context, rec ExportRecord) error {
	row := exportRow{
		ID:         rec.ID,
		Code:       rec.Code,
		ExportedAt: rec.ExportedAt,
		Payload:    rec.Payload,
	}
	return p.db.WithContext(ctx).Save(&row).Error
}
