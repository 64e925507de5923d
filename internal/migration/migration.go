package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/dormhub/internal/audit/domain"
	billingdomain "github.com/smallbiznis/dormhub/internal/billing/domain"
	meterdomain "github.com/smallbiznis/dormhub/internal/meterstate/domain"
	occupancydomain "github.com/smallbiznis/dormhub/internal/occupancy/domain"
	paymentdomain "github.com/smallbiznis/dormhub/internal/payment/domain"
	roomdomain "github.com/smallbiznis/dormhub/internal/room/domain"
	tenantdomain "github.com/smallbiznis/dormhub/internal/tenant/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table the service owns, in dependency order.
func Models() []any {
	return []any{
		&roomdomain.Room{},
		&tenantdomain.Tenant{},
		&occupancydomain.Occupancy{},
		&meterdomain.RoomMeter{},
		&billingdomain.BillingRecord{},
		&billingdomain.BillingRun{},
		&billingdomain.ReceiptSequence{},
		&paymentdomain.CheckoutSession{},
		&paymentdomain.EventRecord{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate builds the schema from the models for sqlite and mysql, which
// the embedded postgres scripts do not target.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
