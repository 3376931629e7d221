package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
	"github.com/google/uuid"
)

// StepHistoryRepository handles step history database operations.
type StepHistoryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepHistoryRepository creates a new step history repository.
func NewStepHistoryRepository(db *sql.DB, logger *slog.Logger) *StepHistoryRepository {
	return &StepHistoryRepository{db: db, logger: logger.With("repository", "step_history")}
}

// Append inserts a new history entry.
func (r *StepHistoryRepository) Append(ctx context.Context, entry *models.StepHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	inputJSON, outputJSON, err := marshalEntryData(entry)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO step_history (id, instance_id, step_id, step_name, step_type, status,
			input_data, output_data, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.InstanceID,
		entry.StepID,
		entry.StepName,
		entry.StepType,
		entry.Status,
		inputJSON,
		outputJSON,
		entry.ErrorMessage,
		entry.StartedAt,
		entry.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append step history: %w", err)
	}

	return nil
}

// Finish closes a STARTED entry. Closed rows never match the UPDATE.
func (r *StepHistoryRepository) Finish(ctx context.Context, entry *models.StepHistoryEntry) error {
	_, outputJSON, err := marshalEntryData(entry)
	if err != nil {
		return err
	}

	query := `
		UPDATE step_history
		SET status = $2, output_data = $3, error_message = $4, completed_at = $5
		WHERE id = $1 AND status = 'STARTED'
	`

	result, err := r.db.ExecContext(ctx, query, entry.ID, entry.Status, outputJSON, entry.ErrorMessage, entry.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to finish step history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	var status models.StepStatus

	err = r.db.QueryRowContext(ctx, `SELECT status FROM step_history WHERE id = $1`, entry.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", persistence.ErrHistoryEntryNotFound, entry.ID)
	}

	if err != nil {
		return fmt.Errorf("failed to check step history: %w", err)
	}

	r.logger.WarnContext(ctx, "attempt to modify closed history entry", "id", entry.ID, "status", status)

	return fmt.Errorf("%w: %s", persistence.ErrHistoryEntryClosed, entry.ID)
}

// ListByInstance returns the entries of an instance by start time ascending.
func (r *StepHistoryRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.StepHistoryEntry, error) {
	query := `
		SELECT id, instance_id, step_id, step_name, step_type, status,
			input_data, output_data, error_message, started_at, completed_at
		FROM step_history
		WHERE instance_id = $1
		ORDER BY started_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step history: %w", err)
	}

	defer func() { _ = rows.Close() }()

	entries := make([]*models.StepHistoryEntry, 0)

	for rows.Next() {
		var (
			entry       models.StepHistoryEntry
			inputJSON   []byte
			outputJSON  []byte
			completedAt sql.NullTime
		)

		err := rows.Scan(
			&entry.ID,
			&entry.InstanceID,
			&entry.StepID,
			&entry.StepName,
			&entry.StepType,
			&entry.Status,
			&inputJSON,
			&outputJSON,
			&entry.ErrorMessage,
			&entry.StartedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step history: %w", err)
		}

		if completedAt.Valid {
			entry.CompletedAt = &completedAt.Time
		}

		if err := unmarshalNullable(inputJSON, &entry.InputData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
		}

		if err := unmarshalNullable(outputJSON, &entry.OutputData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output data: %w", err)
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate step history: %w", err)
	}

	return entries, nil
}

// marshalEntryData returns nil interfaces for absent data so the columns stay NULL.
func marshalEntryData(entry *models.StepHistoryEntry) (any, any, error) {
	var inputJSON, outputJSON any

	if entry.InputData != nil {
		data, err := json.Marshal(entry.InputData)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal input data: %w", err)
		}

		inputJSON = data
	}

	if entry.OutputData != nil {
		data, err := json.Marshal(entry.OutputData)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal output data: %w", err)
		}

		outputJSON = data
	}

	return inputJSON, outputJSON, nil
}

func unmarshalNullable(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, target)
}
