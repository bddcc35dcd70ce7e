package archive

import (
	"database/sql"
	"fmt"
	"time"

	"market-relay/src/logger"
	"market-relay/src/models"

	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

type PostgresArchive struct {
	Config models.MArchiveConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresArchive(cfg models.MArchiveConfig, log *logger.Logger) *PostgresArchive {
	return &PostgresArchive{
		Config: cfg,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) Initialize() error {
	db, err := sql.Open("postgres", d.Config.DBConnectionString)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db
	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS spot_history (
			symbol TEXT,
			ts BIGINT,
			price DOUBLE PRECISION,
			change DOUBLE PRECISION,
			PRIMARY KEY (symbol, ts)
		);`,
		`CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT,
			resolution TEXT,
			t BIGINT,
			open DOUBLE PRECISION,
			high DOUBLE PRECISION,
			low DOUBLE PRECISION,
			close DOUBLE PRECISION,
			PRIMARY KEY (symbol, resolution, t)
		);`,
	}

	for _, query := range queries {
		if _, err := d.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create archive table: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) SaveSpot(state models.MSpotState) error {
	if len(state.Prices) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO spot_history (symbol, ts, price, change)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, ts) DO UPDATE SET
			price = EXCLUDED.price,
			change = EXCLUDED.change
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for symbol, row := range state.Prices {
		if _, err := stmt.Exec(symbol, state.Ts, row.Price, row.Change); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) SaveCandles(symbol, resolution string, candles []models.MCandle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO candles (symbol, resolution, t, open, high, low, close)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, resolution, t) DO UPDATE SET
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(symbol, resolution, c.T, c.O, c.H, c.L, c.C); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) CleanupOldData() error {
	if d.Config.RetentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -d.Config.RetentionDays).Unix()

	if _, err := d.DB.Exec("DELETE FROM spot_history WHERE ts < $1", cutoff); err != nil {
		return err
	}
	if _, err := d.DB.Exec("DELETE FROM candles WHERE t < $1", cutoff); err != nil {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
