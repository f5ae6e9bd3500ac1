package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/veloramarket/push-engine/internal/ledger"
	"github.com/veloramarket/push-engine/internal/registry"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createDeviceTokens(),
		createNotificationRecords(),
	})
	return m.Migrate()
}

func createDeviceTokens() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_device_tokens",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&registry.DeviceTokenModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&registry.DeviceTokenModel{})
		},
	}
}

func createNotificationRecords() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_notification_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&ledger.NotificationRecordModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_notification_records_user_created ON notification_records (user_id, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_notification_records_type ON notification_records (type)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&ledger.NotificationRecordModel{})
		},
	}
}
