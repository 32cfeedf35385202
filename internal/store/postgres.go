package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"neurosphere-backend/internal/models"
)

const scanColumns = `id, owner, filename, content_type, metadata, doctor, status, stage, progress,
	source_image_ref, result, visualization_id, error_message, claimed, created_at, updated_at,
	estimated_completion_time`

const visualizationColumns = `id, scan_id, owner, status, progress, params, html_ref, error_message,
	created_at, updated_at`

// stageRankSQL mirrors models.Stage.Rank for guards evaluated in the database.
const stageRankSQL = `array_position(ARRAY['queued','uploading','processing','building_3d_model','completed']::text[], stage)`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Scans() ScanStore                   { return p }
func (p *PostgresStore) Visualizations() VisualizationStore { return p }

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close(context.Context) error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScanRow(row rowScanner) (*models.Scan, error) {
	var (
		s        models.Scan
		metadata []byte
		result   []byte
		vizID    uuid.NullUUID
	)
	err := row.Scan(
		&s.ID, &s.Owner, &s.Filename, &s.ContentType, &metadata, &s.Doctor, &s.Status, &s.Stage,
		&s.Progress, &s.SourceImageRef, &result, &vizID, &s.ErrorMessage, &s.Claimed,
		&s.CreatedAt, &s.UpdatedAt, &s.EstimatedCompletionTime,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		s.Metadata = json.RawMessage(metadata)
	}
	if len(result) > 0 {
		var r models.ScanResult
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("failed to decode scan result: %w", err)
		}
		s.Result = &r
	}
	if vizID.Valid {
		id := vizID.UUID
		s.VisualizationID = &id
	}
	return &s, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func (p *PostgresStore) InsertScan(ctx context.Context, scan *models.Scan) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO scans (`+scanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL, NULL, $11, $12, $13, $14, $15)
	`, scan.ID, scan.Owner, scan.Filename, scan.ContentType, nullableJSON(scan.Metadata), scan.Doctor,
		scan.Status, scan.Stage, scan.Progress, scan.SourceImageRef, scan.ErrorMessage, scan.Claimed,
		scan.CreatedAt, scan.UpdatedAt, scan.EstimatedCompletionTime)
	if err != nil {
		return fmt.Errorf("failed to create scan: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetScan(ctx context.Context, id uuid.UUID) (*models.Scan, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = $1`, id)
	s, err := scanScanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return s, nil
}

// where renders the filter as a SQL condition with positional arguments.
func (f ScanFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Owner != "" {
		add("owner = $%d", f.Owner)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.TumorDetected != nil {
		add("(result->>'tumorDetected')::boolean = $%d", *f.TumorDetected)
	}
	if !f.CreatedAfter.IsZero() {
		add("created_at >= $%d", f.CreatedAfter)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (p *PostgresStore) ListScans(ctx context.Context, filter ScanFilter, page Page) ([]models.Scan, int64, error) {
	if err := page.validate(); err != nil {
		return nil, 0, err
	}

	total, err := p.CountScans(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	where, args := filter.where()
	query := `SELECT ` + scanColumns + ` FROM scans` + where + ` ORDER BY created_at DESC, id DESC`
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if page.Offset > 0 {
		args = append(args, page.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	scans := []models.Scan{}
	for rows.Next() {
		s, err := scanScanRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan scan row: %w", err)
		}
		scans = append(scans, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list scans: %w", err)
	}

	return scans, total, nil
}

func (p *PostgresStore) CountScans(ctx context.Context, filter ScanFilter) (int64, error) {
	where, args := filter.where()
	var n int64
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return n, nil
}

// guardedExec runs a conditional update and maps zero affected rows to
// ErrRecordNotFound or ErrConflict depending on whether the row exists.
func (p *PostgresStore) guardedExec(ctx context.Context, table string, id uuid.UUID, query string, args ...any) error {
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s: %w", table, err)
	}
	if !exists {
		return ErrRecordNotFound
	}
	return ErrConflict
}

func (p *PostgresStore) ClaimScan(ctx context.Context, id uuid.UUID) error {
	return p.guardedExec(ctx, "scans", id, `
		UPDATE scans
		SET claimed = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND stage = 'queued' AND claimed = FALSE
	`, id)
}

func (p *PostgresStore) AdvanceScan(ctx context.Context, id uuid.UUID, stage models.Stage, progress int) error {
	return p.guardedExec(ctx, "scans", id, `
		UPDATE scans
		SET stage = $2, progress = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND progress <= $3 AND `+stageRankSQL+` <= $4
	`, id, stage, progress, stage.Rank()+1)
}

func (p *PostgresStore) CompleteScan(ctx context.Context, id uuid.UUID, result models.ScanResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode scan result: %w", err)
	}
	return p.guardedExec(ctx, "scans", id, `
		UPDATE scans
		SET status = 'completed', stage = 'completed', progress = 100, result = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, resultJSON)
}

func (p *PostgresStore) FailScan(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return p.guardedExec(ctx, "scans", id, `
		UPDATE scans
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, errorMessage)
}

func (p *PostgresStore) LinkVisualization(ctx context.Context, scanID, visualizationID uuid.UUID) error {
	return p.guardedExec(ctx, "scans", scanID, `
		UPDATE scans SET visualization_id = $2, updated_at = NOW() WHERE id = $1
	`, scanID, visualizationID)
}

func scanVisualizationRow(row rowScanner) (*models.Visualization, error) {
	var (
		v      models.Visualization
		params []byte
	)
	err := row.Scan(&v.ID, &v.ScanID, &v.Owner, &v.Status, &v.Progress, &params, &v.HTMLRef,
		&v.ErrorMessage, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &v.Params); err != nil {
			return nil, fmt.Errorf("failed to decode visualization params: %w", err)
		}
	}
	return &v, nil
}

func (p *PostgresStore) InsertVisualization(ctx context.Context, viz *models.Visualization) error {
	params, err := json.Marshal(viz.Params)
	if err != nil {
		return fmt.Errorf("failed to encode visualization params: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO visualizations (`+visualizationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, viz.ID, viz.ScanID, viz.Owner, viz.Status, viz.Progress, params, viz.HTMLRef,
		viz.ErrorMessage, viz.CreatedAt, viz.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create visualization: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetVisualization(ctx context.Context, id uuid.UUID) (*models.Visualization, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+visualizationColumns+` FROM visualizations WHERE id = $1`, id)
	v, err := scanVisualizationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get visualization: %w", err)
	}
	return v, nil
}

func (p *PostgresStore) FindActiveVisualization(ctx context.Context, scanID uuid.UUID) (*models.Visualization, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+visualizationColumns+`
		FROM visualizations
		WHERE scan_id = $1 AND status = 'processing'
		ORDER BY created_at DESC
		LIMIT 1
	`, scanID)
	v, err := scanVisualizationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find visualization: %w", err)
	}
	return v, nil
}

func (p *PostgresStore) UpdateVisualizationProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return p.guardedExec(ctx, "visualizations", id, `
		UPDATE visualizations
		SET progress = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing' AND progress <= $2
	`, id, progress)
}

func (p *PostgresStore) CompleteVisualization(ctx context.Context, id uuid.UUID, htmlRef string) error {
	return p.guardedExec(ctx, "visualizations", id, `
		UPDATE visualizations
		SET status = 'completed', progress = 100, html_ref = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, htmlRef)
}

func (p *PostgresStore) FailVisualization(ctx context.Context, id uuid.UUID, errorMessage string) error {
	return p.guardedExec(ctx, "visualizations", id, `
		UPDATE visualizations
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, id, errorMessage)
}
