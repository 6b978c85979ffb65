package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"solanum/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// DB wraps the database connection
type DB struct {
	*sqlx.DB
}

// New creates a new database connection, retrying while the server comes up
func New(ctx context.Context, databaseURL string) (*DB, error) {
	var db *sqlx.DB

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		conn, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
		if err != nil {
			log.Printf("Database not ready: %v", err)
			return err
		}
		db = conn
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DB{db}, nil
}

// Wrap adapts an existing *sql.DB, used by tests with a mocked driver
func Wrap(conn *sql.DB) *DB {
	return &DB{sqlx.NewDb(conn, "postgres")}
}

const schema = `
CREATE TABLE IF NOT EXISTS sensor_readings (
	id          BIGSERIAL PRIMARY KEY,
	temperature DOUBLE PRECISION NOT NULL,
	humidity    DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sensor_readings_created_at ON sensor_readings (created_at DESC);

CREATE TABLE IF NOT EXISTS analyses (
	id                BIGSERIAL PRIMARY KEY,
	health_score      INTEGER NOT NULL,
	observations      JSONB NOT NULL DEFAULT '[]',
	issues            JSONB NOT NULL DEFAULT '[]',
	soil_assessment   TEXT NOT NULL,
	light_assessment  TEXT NOT NULL,
	actions           JSONB NOT NULL DEFAULT '[]',
	message           TEXT NOT NULL DEFAULT '',
	detailed_thoughts TEXT NOT NULL DEFAULT '',
	image_base64      TEXT,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses (created_at DESC);

CREATE TABLE IF NOT EXISTS commands (
	id           BIGSERIAL PRIMARY KEY,
	command_type TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	success      BOOLEAN NOT NULL,
	error        TEXT,
	pump_started BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE commands ADD COLUMN IF NOT EXISTS pump_started BOOLEAN NOT NULL DEFAULT false;
CREATE INDEX IF NOT EXISTS idx_commands_type_created_at ON commands (command_type, created_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         BIGSERIAL PRIMARY KEY,
	role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the schema if it does not exist yet
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// InsertSensorReading stores a measurement
func (db *DB) InsertSensorReading(ctx context.Context, temperature, humidity float64) (*models.SensorReading, error) {
	query := `
		INSERT INTO sensor_readings (temperature, humidity)
		VALUES ($1, $2)
		RETURNING id, temperature, humidity, created_at
	`

	var reading models.SensorReading
	if err := db.QueryRowxContext(ctx, query, temperature, humidity).StructScan(&reading); err != nil {
		return nil, fmt.Errorf("failed to insert sensor reading: %w", err)
	}
	return &reading, nil
}

// GetRecentSensorReadings returns the newest readings first
func (db *DB) GetRecentSensorReadings(ctx context.Context, limit int) ([]models.SensorReading, error) {
	query := `
		SELECT id, temperature, humidity, created_at
		FROM sensor_readings
		ORDER BY created_at DESC
		LIMIT $1
	`

	readings := []models.SensorReading{}
	if err := db.SelectContext(ctx, &readings, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query sensor readings: %w", err)
	}
	return readings, nil
}

// GetSensorHistory returns readings recorded since the given time, oldest first
func (db *DB) GetSensorHistory(ctx context.Context, since time.Time) ([]models.SensorReading, error) {
	query := `
		SELECT id, temperature, humidity, created_at
		FROM sensor_readings
		WHERE created_at >= $1
		ORDER BY created_at ASC
	`

	readings := []models.SensorReading{}
	if err := db.SelectContext(ctx, &readings, query, since); err != nil {
		return nil, fmt.Errorf("failed to query sensor history: %w", err)
	}
	return readings, nil
}

// PruneSensorReadings deletes readings older than before
func (db *DB) PruneSensorReadings(ctx context.Context, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM sensor_readings WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sensor readings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// InsertCommand stores the outcome of an executed action
func (db *DB) InsertCommand(ctx context.Context, cmd *models.Command) (*models.Command, error) {
	query := `
		INSERT INTO commands (command_type, reason, success, error, pump_started)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, command_type, reason, success, error, pump_started, created_at
	`

	var stored models.Command
	err := db.QueryRowxContext(ctx, query, cmd.CommandType, cmd.Reason, cmd.Success, cmd.Error, cmd.PumpStarted).StructScan(&stored)
	if err != nil {
		return nil, fmt.Errorf("failed to insert command: %w", err)
	}
	return &stored, nil
}

// GetRecentCommands returns the newest commands first
func (db *DB) GetRecentCommands(ctx context.Context, limit int) ([]models.Command, error) {
	query := `
		SELECT id, command_type, reason, success, error, pump_started, created_at
		FROM commands
		ORDER BY created_at DESC
		LIMIT $1
	`

	commands := []models.Command{}
	if err := db.SelectContext(ctx, &commands, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query commands: %w", err)
	}
	return commands, nil
}

// GetLastWatering returns the most recent water command that succeeded or
// reached the pump, whatever its outcome
func (db *DB) GetLastWatering(ctx context.Context) (*models.Command, error) {
	query := `
		SELECT id, command_type, reason, success, error, pump_started, created_at
		FROM commands
		WHERE command_type = $1 AND (success OR pump_started)
		ORDER BY created_at DESC
		LIMIT 1
	`

	var cmd models.Command
	err := db.GetContext(ctx, &cmd, query, models.ActionWater)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last command: %w", err)
	}
	return &cmd, nil
}

// InsertChatMessage stores a conversation turn
func (db *DB) InsertChatMessage(ctx context.Context, role models.ChatRole, content string) (*models.ChatMessage, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid chat role: %q", role)
	}

	query := `
		INSERT INTO chat_messages (role, content)
		VALUES ($1, $2)
		RETURNING id, role, content, created_at
	`

	var msg models.ChatMessage
	if err := db.QueryRowxContext(ctx, query, role, content).StructScan(&msg); err != nil {
		return nil, fmt.Errorf("failed to insert chat message: %w", err)
	}
	return &msg, nil
}

// GetChatHistory returns the last limit turns in conversation order
func (db *DB) GetChatHistory(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	query := `
		SELECT id, role, content, created_at FROM (
			SELECT id, role, content, created_at
			FROM chat_messages
			ORDER BY created_at DESC, id DESC
			LIMIT $1
		) recent
		ORDER BY created_at ASC, id ASC
	`

	messages := []models.ChatMessage{}
	if err := db.SelectContext(ctx, &messages, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	return messages, nil
}

// Close closes the underlying pool
func (db *DB) Close() error {
	return db.DB.Close()
}

// marshalJSON encodes a JSONB argument as text; lib/pq would send []byte as bytea
func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal json column: %w", err)
	}
	return string(b), nil
}
