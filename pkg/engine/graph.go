package engine

import (
	"github.com/hookflow/hookflow/pkg/models"
)

// graph is the adjacency view of a workflow's actions, built once per
// execution so the walk never re-derives edges.
type graph struct {
	byID     map[string]*models.Action
	children map[string][]*models.Action
	entry    *models.Action
}

func buildGraph(workflowID string, actions []*models.Action) (*graph, error) {
	if err := models.ValidateActionGraph(actions); err != nil {
		return nil, &FatalGraphError{WorkflowID: workflowID, Err: err}
	}

	g := &graph{
		byID:     make(map[string]*models.Action, len(actions)),
		children: make(map[string][]*models.Action),
	}

	for _, action := range actions {
		g.byID[action.ID] = action

		if models.IsCompositeActionType(action.Type) {
			g.children[action.ID] = models.ChildActions(actions, action.ID)
		}
	}

	if entries := models.EntryActions(actions); len(entries) > 0 {
		g.entry = entries[0]
	}

	return g, nil
}

func (g *graph) next(action *models.Action) *models.Action {
	if action.NextActionID == nil {
		return nil
	}

	return g.byID[*action.NextActionID]
}

// branchChildren returns the composite's children carrying the given branch
// label, already ordered.
func (g *graph) branchChildren(parentID, branch string) []*models.Action {
	var selected []*models.Action

	for _, child := range g.children[parentID] {
		if child.Branch == branch {
			selected = append(selected, child)
		}
	}

	return selected
}
