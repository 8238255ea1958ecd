package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Ledger   LedgerConfig
	Listener ListenerConfig
	Economy  EconomyConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// LedgerConfig selects and configures the wallet-ledger backend.
// Backend is "sqlite" (default) or "formance".
type LedgerConfig struct {
	Backend      string
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// ListenerConfig holds evaluation listener settings
type ListenerConfig struct {
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// EconomyConfig holds economy-wide defaults
type EconomyConfig struct {
	GroupsFile            string
	DefaultInitialBalance float64
	HistoryLimit          int
}
