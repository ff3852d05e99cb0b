package models

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrGraphMultipleEntries = errors.New("action graph has more than one entry node")
	ErrGraphCycle           = errors.New("action graph contains a cycle")
	ErrGraphDanglingEdge    = errors.New("action graph references a missing action")
	ErrGraphBadParent       = errors.New("parent action is not a composite type")
)

// ValidateActionGraph checks the well-formedness invariants of a workflow's
// action set: every edge resolves to an existing action, every parent pointer
// names a composite action, there is at most one entry node, and the graph
// reachable through next/parent edges contains no cycles.
func ValidateActionGraph(actions []*Action) error {
	byID := make(map[string]*Action, len(actions))
	for _, action := range actions {
		byID[action.ID] = action
	}

	for _, action := range actions {
		if action.NextActionID != nil {
			if _, ok := byID[*action.NextActionID]; !ok {
				return fmt.Errorf("action %s next %s: %w", action.ID, *action.NextActionID, ErrGraphDanglingEdge)
			}
		}

		if action.ParentActionID != nil {
			parent, ok := byID[*action.ParentActionID]
			if !ok {
				return fmt.Errorf("action %s parent %s: %w", action.ID, *action.ParentActionID, ErrGraphDanglingEdge)
			}

			if !IsCompositeActionType(parent.Type) {
				return fmt.Errorf("action %s parent %s (%s): %w", action.ID, parent.ID, parent.Type, ErrGraphBadParent)
			}
		}
	}

	if entries := EntryActions(actions); len(entries) > 1 {
		return fmt.Errorf("%w: %d entry nodes", ErrGraphMultipleEntries, len(entries))
	}

	return detectCycles(actions, byID)
}

// EntryActions returns the root candidates: actions with no parent that no
// other action points to as its sequential successor.
func EntryActions(actions []*Action) []*Action {
	targeted := make(map[string]bool)
	for _, action := range actions {
		if action.NextActionID != nil {
			targeted[*action.NextActionID] = true
		}
	}

	var entries []*Action

	for _, action := range actions {
		if action.ParentActionID == nil && !targeted[action.ID] {
			entries = append(entries, action)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Order < entries[j].Order })

	return entries
}

// ChildActions derives the ordered children of a composite action from the
// parent pointers, which are the single source of truth for composition.
func ChildActions(actions []*Action, parentID string) []*Action {
	var children []*Action

	for _, action := range actions {
		if action.ParentActionID != nil && *action.ParentActionID == parentID {
			children = append(children, action)
		}
	}

	sort.Slice(children, func(i, j int) bool { return children[i].Order < children[j].Order })

	return children
}

func detectCycles(actions []*Action, byID map[string]*Action) error {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)

	state := make(map[string]int, len(actions))

	var visit func(action *Action) error

	visit = func(action *Action) error {
		switch state[action.ID] {
		case inStack:
			return fmt.Errorf("at action %s: %w", action.ID, ErrGraphCycle)
		case done:
			return nil
		}

		state[action.ID] = inStack

		if action.NextActionID != nil {
			if err := visit(byID[*action.NextActionID]); err != nil {
				return err
			}
		}

		for _, child := range ChildActions(actions, action.ID) {
			if err := visit(child); err != nil {
				return err
			}
		}

		state[action.ID] = done

		return nil
	}

	for _, action := range actions {
		if err := visit(action); err != nil {
			return err
		}
	}

	return nil
}
