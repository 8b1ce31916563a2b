package database

import (
	"errors"
	"time"

	"github.com/reliefops/fieldsync/internal/surveys"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillUploadFlags = "2026-07-10_backfill_attachment_upload_flags"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillUploadFlags, apply: backfillAttachmentUploadFlags},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillAttachmentUploadFlags marks every attachment of an already synced
// record as uploaded. Databases written before per-attachment tracking only
// recorded the overall status, so a synced record implies all of its blobs
// were accepted.
func backfillAttachmentUploadFlags(db *gorm.DB) error {
	return db.Model(&surveys.Survey{}).
		Where("status = ?", surveys.StatusSynced).
		Updates(map[string]any{
			"photo_uploaded":                 true,
			"respondent_signature_uploaded":  true,
			"interviewer_signature_uploaded": true,
		}).Error
}
