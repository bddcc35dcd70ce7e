package archive

import (
	"fmt"

	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"
)

// -----------------------------------------------------------------------------
// Archive selection
// -----------------------------------------------------------------------------

// New builds the configured archive backend. "none" returns a no-op archive,
// so callers never have to nil-check before writing.
func New(cfg models.MArchiveConfig, log *logger.Logger) (interfaces.IArchive, error) {
	switch cfg.DBType {
	case "sqlite":
		return NewSQLiteArchive(cfg, log), nil
	case "postgres":
		return NewPostgresArchive(cfg, log), nil
	case "none", "":
		return &NoopArchive{}, nil
	}
	return nil, fmt.Errorf("unknown archive db type: %s", cfg.DBType)
}

// -----------------------------------------------------------------------------
// NoopArchive discards everything.
// -----------------------------------------------------------------------------

type NoopArchive struct{}

func (a *NoopArchive) Initialize() error                                { return nil }
func (a *NoopArchive) SaveSpot(models.MSpotState) error                 { return nil }
func (a *NoopArchive) SaveCandles(string, string, []models.MCandle) error { return nil }
func (a *NoopArchive) CleanupOldData() error                            { return nil }
func (a *NoopArchive) Close() error                                     { return nil }
