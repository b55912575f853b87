package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
	"github.com/agentmesh/runtime/store"
)

// maxDagWorkers bounds how many independent DAG nodes run concurrently.
const maxDagWorkers = 4

// executeDag runs def.ChildAgentIDs in topological order (Kahn's
// algorithm), with independent nodes at the same depth scheduled onto a
// bounded worker pool, per spec.md §4.6's DagWorkflow definition. Each
// node's incoming message is the original message with its dependencies'
// final results appended; the workflow's own result is the concatenation
// of every terminal node's (no dependents) final parts.
func (o *Orchestrator) executeDag(ctx context.Context, def store.AgentDefinition, message event.Message, ec *execctx.Context, overrides Overrides) (Result, error) {
	nodes := def.ChildAgentIDs
	if len(nodes) == 0 {
		return Result{}, fmt.Errorf("orchestrator: dag workflow %q has no child agents", def.Name)
	}

	order, err := topologicalLayers(nodes, def.DependsOn)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: dag workflow %q: %w", def.Name, err)
	}

	results := make(map[string]Result, len(nodes))
	var mu sync.Mutex

	sem := make(chan struct{}, maxDagWorkers)
	for _, layer := range order {
		var wg sync.WaitGroup
		errCh := make(chan error, len(layer))
		for _, node := range layer {
			node := node
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				input := message
				if deps := def.DependsOn[node]; len(deps) > 0 {
					var parts []event.Part
					mu.Lock()
					for _, dep := range deps {
						parts = append(parts, results[dep].FinalParts...)
					}
					mu.Unlock()
					input = event.Message{Role: event.RoleUser, Parts: append(append([]event.Part{}, message.Parts...), parts...)}
				}

				result, err := o.Execute(ctx, node, input, ec, overrides)
				if err != nil {
					errCh <- fmt.Errorf("node %q: %w", node, err)
					return
				}
				mu.Lock()
				results[node] = result
				mu.Unlock()
			}()
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			return Result{}, err
		}
	}

	hasDependent := make(map[string]bool, len(nodes))
	for _, deps := range def.DependsOn {
		for _, d := range deps {
			hasDependent[d] = true
		}
	}

	var final Result
	for _, node := range nodes {
		if hasDependent[node] {
			continue
		}
		r := results[node]
		final.FinalParts = append(final.FinalParts, r.FinalParts...)
		final.Usage = final.Usage.Add(r.Usage)
		if r.Success {
			final.Success = true
		}
	}
	return final, nil
}

// topologicalLayers runs Kahn's algorithm, grouping nodes into layers where
// every node in a layer has all of its dependencies satisfied by a prior
// layer — layers are exactly the sets of nodes that can run concurrently.
func topologicalLayers(nodes []string, dependsOn map[string][]string) ([][]string, error) {
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		inDegree[n] = 0
	}
	for n, deps := range dependsOn {
		inDegree[n] += len(deps)
	}

	var layers [][]string
	remaining := len(nodes)
	processed := make(map[string]bool, len(nodes))

	for remaining > 0 {
		var layer []string
		for _, n := range nodes {
			if !processed[n] && inDegree[n] == 0 {
				layer = append(layer, n)
			}
		}
		if len(layer) == 0 {
			return nil, fmt.Errorf("cycle detected among child agents")
		}
		inLayer := make(map[string]bool, len(layer))
		for _, n := range layer {
			processed[n] = true
			inLayer[n] = true
			remaining--
		}
		// Nodes depending on a node in this layer lose one in-degree.
		for n, deps := range dependsOn {
			if processed[n] {
				continue
			}
			for _, d := range deps {
				if inLayer[d] {
					inDegree[n]--
				}
			}
		}
		layers = append(layers, layer)
	}
	return layers, nil
}
