package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/dukex/tenantflow/pkg/models"
	"github.com/dukex/tenantflow/pkg/persistence"
	"github.com/google/uuid"
)

// StepHistoryRepository keeps the entries of each instance in one document.
type StepHistoryRepository struct {
	store *store
}

// Append records a new history entry.
func (hr *StepHistoryRepository) Append(_ context.Context, entry *models.StepHistoryEntry) error {
	if err := validateID(entry.InstanceID); err != nil {
		return fmt.Errorf("invalid instance ID: %w", err)
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	hr.store.mu.Lock()
	defer hr.store.mu.Unlock()

	entries, err := hr.load(entry.InstanceID)
	if err != nil {
		return err
	}

	entries = append(entries, entry)

	return hr.store.write(stepHistoryDir, entry.InstanceID, entries)
}

// Finish closes a STARTED entry.
func (hr *StepHistoryRepository) Finish(_ context.Context, entry *models.StepHistoryEntry) error {
	if err := validateID(entry.InstanceID); err != nil {
		return fmt.Errorf("invalid instance ID: %w", err)
	}

	hr.store.mu.Lock()
	defer hr.store.mu.Unlock()

	entries, err := hr.load(entry.InstanceID)
	if err != nil {
		return err
	}

	for i, stored := range entries {
		if stored.ID != entry.ID {
			continue
		}

		if stored.Closed() {
			return fmt.Errorf("%w: %s", persistence.ErrHistoryEntryClosed, entry.ID)
		}

		entries[i] = entry

		return hr.store.write(stepHistoryDir, entry.InstanceID, entries)
	}

	return fmt.Errorf("%w: %s", persistence.ErrHistoryEntryNotFound, entry.ID)
}

// ListByInstance returns the entries of an instance by start time ascending.
func (hr *StepHistoryRepository) ListByInstance(_ context.Context, instanceID string) ([]*models.StepHistoryEntry, error) {
	if err := validateID(instanceID); err != nil {
		return nil, fmt.Errorf("invalid instance ID: %w", err)
	}

	hr.store.mu.Lock()
	defer hr.store.mu.Unlock()

	entries, err := hr.load(instanceID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartedAt.Before(entries[j].StartedAt)
	})

	return entries, nil
}

func (hr *StepHistoryRepository) load(instanceID string) ([]*models.StepHistoryEntry, error) {
	entries := make([]*models.StepHistoryEntry, 0)

	err := hr.store.read(stepHistoryDir, instanceID, &entries)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return entries, nil
}
