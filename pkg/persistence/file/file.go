// Package file provides a JSON-file persistence implementation used for
// development and tests.
package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/hookflow/hookflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of a directory of
// JSON documents. One file per workflow, execution and step set.
type Persistence struct {
	root       string
	workflows  *WorkflowRepository
	executions *ExecutionRepository
}

func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:       cleanRoot,
		workflows:  NewWorkflowRepository(filepath.Join(cleanRoot, "workflows")),
		executions: NewExecutionRepository(filepath.Join(cleanRoot, "executions")),
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository { return p.workflows }

func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}
