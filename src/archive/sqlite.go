package archive

import (
	"database/sql"
	"fmt"
	"time"

	"market-relay/src/logger"
	"market-relay/src/models"

	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

type SQLiteArchive struct {
	Config models.MArchiveConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteArchive(cfg models.MArchiveConfig, log *logger.Logger) *SQLiteArchive {
	return &SQLiteArchive{
		Config: cfg,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) Initialize() error {
	db, err := sql.Open("sqlite", d.Config.DBPath)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) createTables() error {
	// SQLite types: INTEGER for int64, REAL for float64, TEXT for string
	queries := []string{
		`CREATE TABLE IF NOT EXISTS spot_history (
			symbol TEXT,
			ts INTEGER,
			price REAL,
			change REAL,
			PRIMARY KEY (symbol, ts)
		);`,
		`CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT,
			resolution TEXT,
			t INTEGER,
			open REAL,
			high REAL,
			low REAL,
			close REAL,
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

func (d *SQLiteArchive) SaveSpot(state models.MSpotState) error {
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
		VALUES (?, ?, ?, ?)
		ON CONFLICT (symbol, ts) DO UPDATE SET
			price = excluded.price,
			change = excluded.change
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

func (d *SQLiteArchive) SaveCandles(symbol, resolution string, candles []models.MCandle) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, resolution, t) DO UPDATE SET
			high = excluded.high,
			low = excluded.low,
			close = excluded.close
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

func (d *SQLiteArchive) CleanupOldData() error {
	if d.Config.RetentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -d.Config.RetentionDays).Unix()

	if _, err := d.DB.Exec("DELETE FROM spot_history WHERE ts < ?", cutoff); err != nil {
		return err
	}
	if _, err := d.DB.Exec("DELETE FROM candles WHERE t < ?", cutoff); err != nil {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
