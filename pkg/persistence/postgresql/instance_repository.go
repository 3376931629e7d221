package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
	"github.com/lib/pq"
)

const instanceColumns = `instance_id, workflow_id, tenant_id, status, trigger_data, started_at, completed_at, error_message`

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger.With("repository", "instance")}
}

// Create inserts a new instance.
func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	if instance.TriggerData == nil {
		instance.TriggerData = map[string]any{}
	}

	triggerJSON, err := json.Marshal(instance.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	query := `
		INSERT INTO workflow_instances (` + instanceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.InstanceID,
		instance.WorkflowID,
		instance.TenantID,
		instance.Status,
		triggerJSON,
		instance.StartedAt,
		instance.CompletedAt,
		instance.ErrorMessage,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return persistence.NewInstanceError("Create", instance.InstanceID, persistence.ErrInstanceAlreadyExists)
		}

		return persistence.NewInstanceError("Create", instance.InstanceID, err)
	}

	return nil
}

// GetByID retrieves an instance owned by the tenant.
func (r *InstanceRepository) GetByID(ctx context.Context, instanceID, tenantID string) (*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE instance_id = $1 AND tenant_id = $2`

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, instanceID, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInstanceError("GetByID", instanceID, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewInstanceError("GetByID", instanceID, err)
	}

	return instance, nil
}

// TransitionStatus moves the instance with a single conditional UPDATE, so
// only one of several concurrent callers expecting the same status wins.
func (r *InstanceRepository) TransitionStatus(
	ctx context.Context,
	instanceID string,
	from, to models.InstanceStatus,
	errorMessage string,
) (*models.WorkflowInstance, error) {
	if err := persistence.ValidateTransition(instanceID, from, to); err != nil {
		return nil, err
	}

	var (
		completedAt *time.Time
		message     *string
	)

	if to.IsTerminal() {
		now := time.Now().UTC()
		completedAt = &now
	}

	if to == models.InstanceStatusFailed {
		message = &errorMessage
	}

	query := `
		UPDATE workflow_instances
		SET status = $3,
			completed_at = COALESCE($4, completed_at),
			error_message = COALESCE($5, error_message)
		WHERE instance_id = $1 AND status = $2
		RETURNING ` + instanceColumns

	instance, err := scanInstance(r.db.QueryRowContext(ctx, query, instanceID, from, to, completedAt, message))
	if err == nil {
		return instance, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewInstanceError("TransitionStatus", instanceID, err)
	}

	var actual models.InstanceStatus

	err = r.db.QueryRowContext(ctx, `SELECT status FROM workflow_instances WHERE instance_id = $1`, instanceID).Scan(&actual)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInstanceError("TransitionStatus", instanceID, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewInstanceError("TransitionStatus", instanceID, err)
	}

	r.logger.DebugContext(ctx, "status transition lost",
		"instance_id", instanceID, "expected", from, "actual", actual, "target", to)

	return nil, persistence.NewInstanceError("TransitionStatus", instanceID,
		persistence.NewStatusConflictError(instanceID, from, actual))
}

// ListByTenant returns the newest instances of a tenant first.
func (r *InstanceRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE tenant_id = $1 ORDER BY started_at DESC`
	args := []any{tenantID}

	if limit > 0 {
		query += ` LIMIT $2`

		args = append(args, limit)
	}

	return r.list(ctx, query, args...)
}

// ListByStatus returns all instances currently in the given status.
func (r *InstanceRepository) ListByStatus(ctx context.Context, status models.InstanceStatus) ([]*models.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE status = $1 ORDER BY started_at`

	return r.list(ctx, query, status)
}

func (r *InstanceRepository) list(ctx context.Context, query string, args ...any) ([]*models.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() { _ = rows.Close() }()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate instances: %w", err)
	}

	return instances, nil
}

func scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var (
		instance    models.WorkflowInstance
		triggerJSON []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&instance.InstanceID,
		&instance.WorkflowID,
		&instance.TenantID,
		&instance.Status,
		&triggerJSON,
		&instance.StartedAt,
		&completedAt,
		&instance.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}

	err = json.Unmarshal(triggerJSON, &instance.TriggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	return &instance, nil
}
