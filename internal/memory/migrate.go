package memory

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// schemaVersion is the current expected schema version.
const schemaVersion = 2

// migration is one schema step, written once per dialect.
type migration struct {
	Version     int
	Description string
	SQLite      string
	MySQL       string
}

func (m migration) sql(d Dialect) string {
	if d == DialectMySQL {
		return m.MySQL
	}
	return m.SQLite
}

// migrations is the ordered list of schema migrations.
// Each migration is applied exactly once, tracked in the schema_version table.
var migrations = []migration{
	{
		Version:     1,
		Description: "base schema: knowledge_base, conversations, user_profiles, bot_analytics",
		SQLite: `
		CREATE TABLE IF NOT EXISTS knowledge_base (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			category    TEXT NOT NULL,
			keywords    TEXT NOT NULL DEFAULT '',
			question    TEXT NOT NULL,
			answer      TEXT NOT NULL,
			priority    INTEGER NOT NULL DEFAULT 1,
			is_active   INTEGER NOT NULL DEFAULT 1,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_kb_category ON knowledge_base(category, is_active, priority);

		CREATE TABLE IF NOT EXISTS conversations (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			phone_number     TEXT NOT NULL,
			user_name        TEXT,
			message_text     TEXT NOT NULL,
			message_type     TEXT NOT NULL CHECK (message_type IN ('user', 'assistant', 'system')),
			ai_model         TEXT,
			response_time_ms INTEGER,
			created_at       DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_conv_phone ON conversations(phone_number, id);

		CREATE TABLE IF NOT EXISTS user_profiles (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			phone_number     TEXT NOT NULL UNIQUE,
			name             TEXT,
			email            TEXT,
			preferences      TEXT,
			context_data     TEXT,
			total_messages   INTEGER NOT NULL DEFAULT 0,
			last_interaction DATETIME,
			created_at       DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at       DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS bot_analytics (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			metric_name  TEXT NOT NULL,
			metric_value REAL NOT NULL,
			dimensions   TEXT,
			recorded_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_analytics_metric ON bot_analytics(metric_name, recorded_at);
		`,
		MySQL: `
		CREATE TABLE IF NOT EXISTS knowledge_base (
			id          BIGINT AUTO_INCREMENT PRIMARY KEY,
			category    VARCHAR(100) NOT NULL,
			keywords    TEXT NOT NULL,
			question    TEXT NOT NULL,
			answer      TEXT NOT NULL,
			priority    INT NOT NULL DEFAULT 1,
			is_active   BOOLEAN NOT NULL DEFAULT TRUE,
			created_at  DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6),
			updated_at  DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_kb_category (category, is_active, priority)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

		CREATE TABLE IF NOT EXISTS conversations (
			id               BIGINT AUTO_INCREMENT PRIMARY KEY,
			phone_number     VARCHAR(32) NOT NULL,
			user_name        VARCHAR(255),
			message_text     TEXT NOT NULL,
			message_type     ENUM('user', 'assistant', 'system') NOT NULL,
			ai_model         VARCHAR(64),
			response_time_ms INT,
			created_at       DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_conv_phone (phone_number, id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

		CREATE TABLE IF NOT EXISTS user_profiles (
			id               BIGINT AUTO_INCREMENT PRIMARY KEY,
			phone_number     VARCHAR(32) NOT NULL UNIQUE,
			name             VARCHAR(255),
			email            VARCHAR(255),
			preferences      JSON,
			context_data     JSON,
			total_messages   INT NOT NULL DEFAULT 0,
			last_interaction DATETIME(6),
			created_at       DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6),
			updated_at       DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;

		CREATE TABLE IF NOT EXISTS bot_analytics (
			id           BIGINT AUTO_INCREMENT PRIMARY KEY,
			metric_name  VARCHAR(100) NOT NULL,
			metric_value DECIMAL(12,2) NOT NULL,
			dimensions   JSON,
			recorded_at  DATETIME(6) DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_analytics_metric (metric_name, recorded_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
		`,
	},
	{
		Version:     2,
		Description: "v2: time indexes for admin analytics",
		SQLite: `
		CREATE INDEX IF NOT EXISTS idx_conv_time ON conversations(created_at);
		CREATE INDEX IF NOT EXISTS idx_profiles_last ON user_profiles(last_interaction);
		`,
		MySQL: `
		CREATE INDEX idx_conv_time ON conversations(created_at);
		CREATE INDEX idx_profiles_last ON user_profiles(last_interaction);
		`,
	},
}

// RunMigrations applies all pending schema migrations.
// It uses a schema_version table to track which migrations have been applied.
func RunMigrations(db *sql.DB, dialect Dialect, logger *slog.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version     INTEGER PRIMARY KEY,
			description TEXT,
			applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	currentVersion := 0
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		logger.Info("applying migration",
			"version", m.Version,
			"description", m.Description,
			"dialect", dialect,
		)

		// MySQL commits DDL implicitly and rejects multi-statement Exec
		// without multiStatements=true, so it always goes statement by statement.
		if dialect == DialectMySQL {
			if err := applyMigrationStatements(db, dialect, m, logger); err != nil {
				return err
			}
			logger.Info("migration applied", "version", m.Version)
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.sql(dialect)); err != nil {
			tx.Rollback()
			logger.Warn("migration SQL partially failed (may be expected for upgrades)",
				"version", m.Version,
				"err", err,
			)
			if err := applyMigrationStatements(db, dialect, m, logger); err != nil {
				return err
			}
		} else {
			if _, err := tx.Exec(
				"REPLACE INTO schema_version (version, description) VALUES (?, ?)",
				m.Version, m.Description,
			); err != nil {
				tx.Rollback()
				return fmt.Errorf("record migration v%d: %w", m.Version, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("commit migration v%d: %w", m.Version, err)
			}
		}

		logger.Info("migration applied", "version", m.Version)
	}

	return nil
}

// applyMigrationStatements applies each SQL statement individually, skipping
// objects that already exist so partially applied steps can be resumed.
func applyMigrationStatements(db *sql.DB, dialect Dialect, m migration, logger *slog.Logger) error {
	for _, stmt := range splitSQL(m.sql(dialect)) {
		if _, err := db.Exec(stmt); err != nil {
			if alreadyApplied(err) {
				logger.Debug("migration statement skipped (already applied)", "stmt_prefix", truncate(stmt, 60))
				continue
			}
			return fmt.Errorf("migration v%d statement failed: %w\nSQL: %s", m.Version, err, truncate(stmt, 200))
		}
	}

	if _, err := db.Exec(
		"REPLACE INTO schema_version (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("record migration v%d: %w", m.Version, err)
	}
	return nil
}

func alreadyApplied(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") ||
		strings.Contains(msg, "duplicate key name") ||
		strings.Contains(msg, "already exists")
}

// splitSQL splits a multi-statement SQL string on semicolons.
func splitSQL(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// GetSchemaVersion returns the applied schema version, or 0 for an
// uninitialized database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, nil
	}
	return version, nil
}
