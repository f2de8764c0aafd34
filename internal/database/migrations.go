package database

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/ghostwatch/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationClampVisibilityRange = "2026-09-14_clamp_visibility_range"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(context.Context, store.Store) error
}

func migrations() []migrationDefinition {
	return []migrationDefinition{
		{name: migrationClampVisibilityRange, apply: clampVisibilityRange},
	}
}

// applyMigrations runs each named migration once. A migration and its record
// commit together.
func applyMigrations(ctx context.Context, st store.Store, clock func() time.Time, logger *zap.Logger) error {
	for _, migration := range migrations() {
		var record migrationRecord
		err := st.Gorm().WithContext(ctx).Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		err = st.Transaction(ctx, func(tx store.Store) error {
			if err := migration.apply(ctx, tx); err != nil {
				return err
			}
			appliedAt := clock().UTC().Unix()
			return tx.Gorm().WithContext(ctx).Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// clampVisibilityRange pulls visibility values from before the 0..10 check
// constraint back into range.
func clampVisibilityRange(ctx context.Context, st store.Store) error {
	for _, table := range []string{"ghosts", "sightings"} {
		if _, err := st.Run(ctx, "UPDATE "+table+" SET visibility = 0 WHERE visibility < 0"); err != nil {
			return err
		}
		if _, err := st.Run(ctx, "UPDATE "+table+" SET visibility = 10 WHERE visibility > 10"); err != nil {
			return err
		}
	}
	return nil
}
