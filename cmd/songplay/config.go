package main

import (
	"context"
	"fmt"

	"github.com/franz/songplay-etl/internal/report"
	"github.com/franz/songplay-etl/internal/store"
	"github.com/franz/songplay-etl/internal/util"
	"github.com/spf13/viper"
)

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (SONGPLAY_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigBool retrieves a bool config value
func GetConfigBool(key string) bool {
	return viper.GetBool(key)
}

// GetConfigStringSlice retrieves a string slice config value
func GetConfigStringSlice(key string) []string {
	return viper.GetStringSlice(key)
}

// applyLogLevel applies --verbose and --quiet to the console logger
func applyLogLevel() {
	util.SetVerbose(GetConfigBool("verbose"))
	util.SetQuiet(GetConfigBool("quiet"))
}

// storeConfig builds the warehouse configuration from flags, env and config file
func storeConfig() store.Config {
	return store.Config{
		Driver: GetConfigString("driver", string(store.DialectSQLite)),
		Path:   GetConfigString("db", "songplay.db"),
		DSN:    GetConfigString("dsn", ""),
	}
}

// describeStore names the warehouse without leaking credentials
func describeStore(cfg store.Config) string {
	dialect, err := store.ParseDialect(cfg.Driver)
	if err != nil {
		return cfg.Driver
	}
	if dialect == store.DialectPostgres {
		return "postgres"
	}
	return fmt.Sprintf("sqlite (%s)", cfg.Path)
}

// openStore opens the warehouse, retrying transient connection failures
func openStore(ctx context.Context, cfg store.Config) (store.DB, error) {
	db, err := util.RetryWithBackoff(ctx, util.DefaultRetryConfig(), func(ctx context.Context) (store.DB, error) {
		return store.Open(ctx, cfg)
	}, "open warehouse")
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	return db, nil
}

// buildStatements binds the statement set to the dialect and applies overrides from the config file
func buildStatements(dialect store.Dialect) (*store.Statements, error) {
	policy, err := store.ParseConflictPolicy(viper.GetString("conflict-policy"))
	if err != nil {
		return nil, err
	}

	stmts := store.NewStatements(dialect, policy)
	if overrides := viper.GetStringMapString("statements"); len(overrides) > 0 {
		if err := stmts.Override(overrides); err != nil {
			return nil, err
		}
		util.DebugLog("Statement overrides: %d", len(overrides))
	}
	return stmts, nil
}

// newEventLogger opens the JSONL event log, falling back to a no-op logger
func newEventLogger() *report.EventLogger {
	logLevel := report.LevelInfo
	if GetConfigBool("quiet") {
		logLevel = report.LevelWarning
	} else if GetConfigBool("verbose") {
		logLevel = report.LevelDebug
	}

	logger, err := report.NewEventLogger(GetConfigString("artifacts", "artifacts"), logLevel)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	return logger
}
