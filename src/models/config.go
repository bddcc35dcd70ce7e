package models

// MConfig Structure
type MConfig struct {
	Name     string         `yaml:"name"`
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	LogLevel string         `yaml:"log_level"`
	Symbols  []string       `yaml:"symbols"`
	Store    MStoreConfig   `yaml:"store"`
	Poll     MPollConfig    `yaml:"poll"`
	Candles  MCandleConfig  `yaml:"candles"`
	Archive  MArchiveConfig `yaml:"archive"`
	Alerts   MAlertConfig   `yaml:"alerts"`
}

type MStoreConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MPollConfig struct {
	IntervalMs       int `yaml:"interval_ms"`
	CandleIntervalMs int `yaml:"candle_interval_ms"`
	// IdleDivisor slows polling to every Nth tick while all tracked
	// markets are closed. 1 disables the slowdown.
	IdleDivisor int `yaml:"idle_divisor"`
}

type MCandleConfig struct {
	Resolutions   []string `yaml:"resolutions"`
	LookbackHours int      `yaml:"lookback_hours"`
}

type MArchiveConfig struct {
	DBType             string `yaml:"db_type"` // "none", "sqlite" or "postgres"
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MAlertConfig struct {
	HistorySize int `yaml:"history_size"`
}
