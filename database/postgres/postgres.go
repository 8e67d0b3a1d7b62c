package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func FormatDSN(cfg Config) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == "" {
		port = "5432"
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, cfg.Password, cfg.Name, sslMode,
	)
}

func New(cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", FormatDSN(cfg))
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS detections (
		id               VARCHAR(26) PRIMARY KEY,
		filename         TEXT NOT NULL,
		timestamp        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		detected_classes JSONB NOT NULL DEFAULT '[]',
		threat_level     VARCHAR(16) NOT NULL,
		confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
		image_path       TEXT,
		total_detections INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_detections_timestamp ON detections (timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_detections_threat_level ON detections (threat_level);
`

// Migrate creates the detections table and its indexes when missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate detections table: %w", err)
	}
	return nil
}
