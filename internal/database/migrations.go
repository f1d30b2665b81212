package database

import (
	"errors"
	"time"

	"github.com/campusconnect/backend/internal/notifications"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillMessageReferenceKind = "2025-05-01_backfill_message_reference_kind"
	migrationDropOrphanMessageAlerts      = "2025-05-14_drop_orphan_message_notifications"
)

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
		{name: migrationBackfillMessageReferenceKind, apply: backfillMessageReferenceKind},
		{name: migrationDropOrphanMessageAlerts, apply: dropOrphanMessageNotifications},
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
		if err := db.Transaction(migration.apply); err != nil {
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

// Message notifications written before reference kinds existed carry an empty kind.
func backfillMessageReferenceKind(db *gorm.DB) error {
	return db.Model(&notifications.Notification{}).
		Where("notification_type = ? AND reference_kind = ?", notifications.TypeMessage, "").
		Update("reference_kind", "message").Error
}

func dropOrphanMessageNotifications(db *gorm.DB) error {
	return db.
		Where("notification_type = ? AND reference_kind = ?", notifications.TypeMessage, "message").
		Where("reference_id NOT IN (?)", db.Table("direct_messages").Select("message_id")).
		Delete(&notifications.Notification{}).Error
}
