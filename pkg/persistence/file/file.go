// Package file provides file-based persistence for workflow instances and
// permission rules. Instances are stored as one JSON document each; a single
// lock serializes transitions, which is what gives this implementation the
// atomicity the persistence contracts demand.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/pressgate/pressgate/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root string
	mu   sync.RWMutex

	instanceRepo   *InstanceRepository
	taskRepo       *TaskRepository
	permissionRepo *PermissionRepository
}

// NewPersistence creates a file persistence layer rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	fp := &Persistence{root: cleanRoot}
	fp.instanceRepo = &InstanceRepository{persistence: fp}
	fp.taskRepo = &TaskRepository{persistence: fp}
	fp.permissionRepo = &PermissionRepository{persistence: fp}

	return fp
}

// Instances returns the instance repository.
func (fp *Persistence) Instances() persistence.InstanceRepository {
	return fp.instanceRepo
}

// Tasks returns the task repository.
func (fp *Persistence) Tasks() persistence.TaskRepository {
	return fp.taskRepo
}

// Permissions returns the permission repository.
func (fp *Persistence) Permissions() persistence.PermissionRepository {
	return fp.permissionRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file persistence there is nothing
// to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
