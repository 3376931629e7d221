// Package file provides file-based persistence for workflow definitions and instances.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/tenantflow/pkg/persistence"
)

const (
	definitionsDir     = "definitions"
	instancesDir       = "instances"
	executionStatesDir = "execution_states"
	stepHistoryDir     = "step_history"
)

// store is the shared file root. Every read-modify-write runs under mu, which
// makes status compare-and-swap atomic within the process.
type store struct {
	root string
	mu   sync.Mutex
}

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	store          *store
	definitionRepo *DefinitionRepository
	instanceRepo   *InstanceRepository
	stateRepo      *ExecutionStateRepository
	historyRepo    *StepHistoryRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	s := &store{root: strings.Replace(root, "file://", "", 1)}

	return &Persistence{
		store:          s,
		definitionRepo: &DefinitionRepository{store: s},
		instanceRepo:   &InstanceRepository{store: s},
		stateRepo:      &ExecutionStateRepository{store: s},
		historyRepo:    &StepHistoryRepository{store: s},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.store.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) DefinitionRepository() persistence.DefinitionRepository {
	return fp.definitionRepo
}

func (fp *Persistence) InstanceRepository() persistence.InstanceRepository {
	return fp.instanceRepo
}

func (fp *Persistence) ExecutionStateRepository() persistence.ExecutionStateRepository {
	return fp.stateRepo
}

func (fp *Persistence) StepHistoryRepository() persistence.StepHistoryRepository {
	return fp.historyRepo
}

// validateID rejects identifiers that would escape the storage directory.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: identifier cannot be empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

func (s *store) path(dir, id string) string {
	return filepath.Join(s.root, dir, id+".json")
}

// read decodes a JSON document. It returns os.ErrNotExist when the file is absent.
func (s *store) read(dir, id string, target any) error {
	data, err := os.ReadFile(s.path(dir, id)) // #nosec G304 -- id is validated by callers
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return nil
}

// write replaces a JSON document through a temporary file and a rename.
func (s *store) write(dir, id string, value any) error {
	directory := filepath.Join(s.root, dir)

	if err := os.MkdirAll(directory, 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	tmp, err := os.CreateTemp(directory, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s/%s: %w", dir, id, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	if err := os.Rename(tmp.Name(), s.path(dir, id)); err != nil {
		return fmt.Errorf("failed to replace %s/%s: %w", dir, id, err)
	}

	return nil
}

// ids lists the document ids stored in a directory.
func (s *store) ids(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, dir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s directory: %w", dir, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
