package main

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/agentmesh/runtime/orchestrator"
	"github.com/agentmesh/runtime/store"
)

// catalogFile is the on-disk shape of the agent catalog bootstrap file: a
// flat TOML document of [[agent]] tables, one per AgentDefinition, in the
// same decode-with-defaults style config.Load uses for Config itself.
type catalogFile struct {
	Agent []catalogEntry `toml:"agent"`
}

type catalogEntry struct {
	Name              string              `toml:"name"`
	Description       string              `toml:"description"`
	Kind              string              `toml:"kind"`
	ToolFormat        string              `toml:"tool_format"`
	ReasoningDepth    string              `toml:"reasoning_depth"`
	ExecutionMode     string              `toml:"execution_mode"`
	MaxIterations     int                 `toml:"max_iterations"`
	ChildAgentIDs     []string            `toml:"child_agent_ids"`
	DependsOn         map[string][]string `toml:"depends_on"`
	RequiredSecrets   []string            `toml:"required_secrets"`
	UsesBrowser       bool                `toml:"uses_browser"`
	ReflectionEnabled bool                `toml:"reflection_enabled"`
}

// loadCatalog reads a catalog bootstrap file at path. A missing file yields
// an empty catalog rather than an error: an operator may prefer to populate
// the AgentStore entirely through a future admin API, matching config.Load's
// own "missing file is not an error" convention.
func loadCatalog(path string) ([]store.AgentDefinition, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	var raw catalogFile
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("decoding agent catalog %s: %w", path, err)
	}

	defs := make([]store.AgentDefinition, 0, len(raw.Agent))
	for _, e := range raw.Agent {
		if e.Name == "" {
			return nil, fmt.Errorf("agent catalog %s: entry with empty name", path)
		}
		kind := store.AgentKind(e.Kind)
		if kind == "" {
			kind = store.AgentStandard
		}
		defs = append(defs, store.AgentDefinition{
			Name:              e.Name,
			Description:       e.Description,
			Kind:              kind,
			ToolFormat:        e.ToolFormat,
			ReasoningDepth:    e.ReasoningDepth,
			ExecutionMode:     e.ExecutionMode,
			MaxIterations:     e.MaxIterations,
			ChildAgentIDs:     e.ChildAgentIDs,
			DependsOn:         e.DependsOn,
			RequiredSecrets:   e.RequiredSecrets,
			UsesBrowser:       e.UsesBrowser,
			ReflectionEnabled: e.ReflectionEnabled,
		})
	}
	return defs, nil
}

// bootstrapCatalog registers every definition loaded from path into agents.
// Agents already present in the store (e.g. a restart against a persistent
// AgentStore) are left untouched rather than re-registered, so an operator's
// runtime edits via the catalog API survive a redeploy of the same bootstrap
// file.
func bootstrapCatalog(ctx context.Context, o *orchestrator.Orchestrator, agents store.AgentStore, path string) error {
	defs, err := loadCatalog(path)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if _, err := agents.Get(ctx, def.Name); err == nil {
			continue
		}
		if err := o.RegisterAgentDefinition(ctx, def); err != nil {
			return fmt.Errorf("registering catalog agent %q: %w", def.Name, err)
		}
	}
	return nil
}
