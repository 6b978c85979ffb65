package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"solanum/models"
)

// analysisRow mirrors the analyses table; JSONB columns arrive as raw bytes
type analysisRow struct {
	ID               int64          `db:"id"`
	HealthScore      int            `db:"health_score"`
	Observations     []byte         `db:"observations"`
	Issues           []byte         `db:"issues"`
	SoilAssessment   string         `db:"soil_assessment"`
	LightAssessment  string         `db:"light_assessment"`
	Actions          []byte         `db:"actions"`
	Message          string         `db:"message"`
	DetailedThoughts string         `db:"detailed_thoughts"`
	ImageBase64      sql.NullString `db:"image_base64"`
	CreatedAt        time.Time      `db:"created_at"`
}

func (r *analysisRow) toModel() (*models.Analysis, error) {
	a := &models.Analysis{
		ID:               r.ID,
		HealthScore:      r.HealthScore,
		SoilAssessment:   models.SoilAssessment(r.SoilAssessment),
		LightAssessment:  models.LightAssessment(r.LightAssessment),
		Message:          r.Message,
		DetailedThoughts: r.DetailedThoughts,
		ImageBase64:      r.ImageBase64.String,
		CreatedAt:        r.CreatedAt,
	}
	if err := json.Unmarshal(r.Observations, &a.Observations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal observations: %w", err)
	}
	if err := json.Unmarshal(r.Issues, &a.Issues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issues: %w", err)
	}
	if err := json.Unmarshal(r.Actions, &a.Actions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal actions: %w", err)
	}
	return a, nil
}

const analysisColumns = `id, health_score, observations, issues, soil_assessment, light_assessment,
	actions, message, detailed_thoughts, image_base64, created_at`

// InsertAnalysis stores an analysis and returns it with its id and timestamp
func (db *DB) InsertAnalysis(ctx context.Context, a *models.Analysis) (*models.Analysis, error) {
	observations, err := marshalJSON(a.Observations)
	if err != nil {
		return nil, err
	}
	issues, err := marshalJSON(a.Issues)
	if err != nil {
		return nil, err
	}
	actions, err := marshalJSON(a.Actions)
	if err != nil {
		return nil, err
	}

	image := sql.NullString{String: a.ImageBase64, Valid: a.ImageBase64 != ""}

	query := `
		INSERT INTO analyses (health_score, observations, issues, soil_assessment, light_assessment,
			actions, message, detailed_thoughts, image_base64)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + analysisColumns

	var row analysisRow
	err = db.QueryRowxContext(ctx, query, a.HealthScore, observations, issues,
		string(a.SoilAssessment), string(a.LightAssessment), actions,
		a.Message, a.DetailedThoughts, image).StructScan(&row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert analysis: %w", err)
	}
	return row.toModel()
}

// GetLatestAnalysis returns the most recent analysis including its image
func (db *DB) GetLatestAnalysis(ctx context.Context) (*models.Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses ORDER BY created_at DESC LIMIT 1`

	var row analysisRow
	err := db.GetContext(ctx, &row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest analysis: %w", err)
	}
	return row.toModel()
}

// GetAnalyses lists recent analyses newest first, without images
func (db *DB) GetAnalyses(ctx context.Context, limit int) ([]models.Analysis, error) {
	query := `
		SELECT id, health_score, observations, issues, soil_assessment, light_assessment,
			actions, message, detailed_thoughts, NULL AS image_base64, created_at
		FROM analyses
		ORDER BY created_at DESC
		LIMIT $1
	`

	var rows []analysisRow
	if err := db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}

	analyses := make([]models.Analysis, 0, len(rows))
	for i := range rows {
		a, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, *a)
	}
	return analyses, nil
}
