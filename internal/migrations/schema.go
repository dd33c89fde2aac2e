package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// sqlFS contains the embedded SQL migration files.
//
//go:embed sql/*.sql
var sqlFS embed.FS

// Up applies all pending database migrations. It is safe to call multiple
// times; when the schema is up to date the function is a no-op.
func Up(databaseURL string, logger *zap.Logger) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("migrations: open database: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrations: create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(sqlFS, "sql")
	if err != nil {
		return fmt.Errorf("migrations: open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrations: init migrate instance: %w", err)
	}

	if v, _, verr := m.Version(); verr == nil {
		logger.Info("current database schema version", zap.Uint("version", v))
	} else if verr == migrate.ErrNilVersion {
		logger.Info("no existing migration version (fresh database)")
	}

	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			logger.Info("database schema is up to date")
			return nil
		}
		return fmt.Errorf("migrations: apply: %w", err)
	}

	if v, _, err := m.Version(); err == nil {
		logger.Info("applied migrations", zap.Uint("version", v))
	}

	return nil
}
