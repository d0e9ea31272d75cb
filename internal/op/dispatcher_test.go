package op

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gremd/internal/eval"
	"gremd/internal/graph"
	"gremd/internal/protocol"
	"gremd/internal/session"
)

// scriptedEvaluator understands two forms: "NAME = N" stores an int binding,
// a bare "NAME" reads one back. "boom" raises a script error.
func scriptedEvaluator() eval.Evaluator {
	return eval.Func(func(ctx context.Context, req eval.Request) (interface{}, error) {
		script := strings.TrimSpace(req.Script)
		if script == "boom" {
			return nil, eval.Errorf("division by zero")
		}
		if script == "nothing" {
			return nil, nil
		}
		if name, ok := strings.CutSuffix(script, "++"); ok {
			n, _ := req.Bindings[name].(int)
			req.Bindings[name] = n + 1
			return n + 1, nil
		}
		if name, value, found := strings.Cut(script, "="); found {
			var n int
			fmt.Sscanf(strings.TrimSpace(value), "%d", &n)
			req.Bindings[strings.TrimSpace(name)] = n
			return n, nil
		}
		v, ok := req.Bindings[script]
		if !ok {
			return nil, eval.Errorf("No such property: %s", script)
		}
		return v, nil
	})
}

func newTestProcessor(t *testing.T) (*Processor, *session.Registry, *graph.Manager) {
	t.Helper()
	registry := session.NewRegistry(time.Hour, time.Hour)
	t.Cleanup(registry.Shutdown)

	graphs := graph.NewManager()
	g := graph.NewGraph("g1", nil)
	graphs.AddGraph(g)
	graphs.AddTraversalSource(&graph.TraversalSource{Name: "gts", Graph: g})

	return NewProcessor(registry, graphs, scriptedEvaluator()), registry, graphs
}

func evalRequest(sessionID, script string, extra map[string]interface{}) *protocol.RequestMessage {
	args := map[string]interface{}{}
	if sessionID != "" {
		args[protocol.ArgsSession] = sessionID
	}
	if script != "" {
		args[protocol.ArgsGremlin] = script
	}
	for k, v := range extra {
		args[k] = v
	}
	return &protocol.RequestMessage{RequestID: "r1", Op: protocol.OpEval, Args: args}
}

func TestEvalRequiresSession(t *testing.T) {
	p, registry, _ := newTestProcessor(t)

	resp := p.Handle(context.Background(), evalRequest("", "x = 1", nil))
	require.Equal(t, protocol.StatusRequestErrorInvalidArgs, resp.Status.Code)
	require.Contains(t, resp.Status.Message, protocol.ArgsSession)
	require.Equal(t, 0, registry.Len(), "validation must precede registry access")
}

func TestEvalRequiresGremlin(t *testing.T) {
	p, registry, _ := newTestProcessor(t)

	resp := p.Handle(context.Background(), evalRequest("s1", "", nil))
	require.Equal(t, protocol.StatusRequestErrorInvalidArgs, resp.Status.Code)
	require.Contains(t, resp.Status.Message, protocol.ArgsGremlin)
	require.Equal(t, 0, registry.Len())
}

func TestEvalBindingsPersistAcrossRequests(t *testing.T) {
	p, registry, _ := newTestProcessor(t)

	resp := p.Handle(context.Background(), evalRequest("s1", "x = 7", nil))
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	require.Equal(t, 7, resp.Result.Data)
	require.Equal(t, 1, registry.Len())

	resp = p.Handle(context.Background(), evalRequest("s1", "x", nil))
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	require.Equal(t, 7, resp.Result.Data)
}

func TestEvalSessionsAreIsolated(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	p.Handle(context.Background(), evalRequest("a", "x = 1", nil))
	resp := p.Handle(context.Background(), evalRequest("b", "x", nil))
	require.Equal(t, protocol.StatusServerErrorScriptEvaluation, resp.Status.Code)
}

func TestEvalNoContent(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	resp := p.Handle(context.Background(), evalRequest("s1", "nothing", nil))
	require.Equal(t, protocol.StatusNoContent, resp.Status.Code)
	require.Nil(t, resp.Result.Data)
}

func TestEvalRejectsAliasesWithRebindings(t *testing.T) {
	p, registry, _ := newTestProcessor(t)

	resp := p.Handle(context.Background(), evalRequest("s1", "x = 1", map[string]interface{}{
		protocol.ArgsAliases:    map[string]interface{}{"graph": "g1"},
		protocol.ArgsRebindings: map[string]interface{}{"graph": "g1"},
	}))
	require.Equal(t, protocol.StatusRequestErrorInvalidArgs, resp.Status.Code)
	require.Contains(t, resp.Status.Message, "aliases")
	require.Equal(t, 0, registry.Len(), "conflicting overlays must be rejected before session creation")
}

func TestEvalAliasResolution(t *testing.T) {
	p, _, graphs := newTestProcessor(t)
	g1, _ := graphs.Graph("g1")

	resp := p.Handle(context.Background(), evalRequest("s1", "graph", map[string]interface{}{
		protocol.ArgsAliases: map[string]interface{}{"graph": "g1"},
	}))
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	require.Same(t, g1, resp.Result.Data)
}

func TestEvalAliasResolvesTraversalSource(t *testing.T) {
	p, _, graphs := newTestProcessor(t)
	ts, _ := graphs.TraversalSource("gts")

	resp := p.Handle(context.Background(), evalRequest("s1", "g", map[string]interface{}{
		protocol.ArgsAliases: map[string]interface{}{"g": "gts"},
	}))
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	require.Same(t, ts, resp.Result.Data)
}

func TestEvalUnresolvableAlias(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	resp := p.Handle(context.Background(), evalRequest("s1", "graph", map[string]interface{}{
		protocol.ArgsAliases: map[string]interface{}{"graph": "missing"},
	}))
	require.Equal(t, protocol.StatusRequestErrorInvalidArgs, resp.Status.Code)
	require.Contains(t, resp.Status.Message, "missing")
}

func TestEvalLegacyRebindingsStillResolve(t *testing.T) {
	p, _, graphs := newTestProcessor(t)
	g1, _ := graphs.Graph("g1")

	resp := p.Handle(context.Background(), evalRequest("s1", "graph", map[string]interface{}{
		protocol.ArgsRebindings: map[string]interface{}{"graph": "g1"},
	}))
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	require.Same(t, g1, resp.Result.Data)
}

func TestEvalExplicitBindingsOverrideAliases(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	resp := p.Handle(context.Background(), evalRequest("s1", "graph", map[string]interface{}{
		protocol.ArgsAliases:  map[string]interface{}{"graph": "g1"},
		protocol.ArgsBindings: map[string]interface{}{"graph": 99},
	}))
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	require.Equal(t, 99, resp.Result.Data)
}

func TestEvalOverlayIsNotPersisted(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	resp := p.Handle(context.Background(), evalRequest("s1", "graph", map[string]interface{}{
		protocol.ArgsAliases: map[string]interface{}{"graph": "g1"},
	}))
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)

	// Without the alias overlay the name must be gone again.
	resp = p.Handle(context.Background(), evalRequest("s1", "graph", nil))
	require.Equal(t, protocol.StatusServerErrorScriptEvaluation, resp.Status.Code)
}

func TestEvalScriptErrorKeepsSessionUsable(t *testing.T) {
	p, registry, _ := newTestProcessor(t)

	p.Handle(context.Background(), evalRequest("s1", "x = 3", nil))

	resp := p.Handle(context.Background(), evalRequest("s1", "boom", nil))
	require.Equal(t, protocol.StatusServerErrorScriptEvaluation, resp.Status.Code)
	require.Equal(t, "division by zero", resp.Status.Message)
	require.Equal(t, 1, registry.Len(), "a failed script must not kill the session")

	resp = p.Handle(context.Background(), evalRequest("s1", "x", nil))
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	require.Equal(t, 3, resp.Result.Data)
}

func TestEvalConcurrentIncrementsSerialize(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := p.Handle(context.Background(), evalRequest("counterSession", "n++", nil))
			require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
		}()
	}
	wg.Wait()

	resp := p.Handle(context.Background(), evalRequest("counterSession", "n", nil))
	require.Equal(t, protocol.StatusSuccess, resp.Status.Code)
	require.Equal(t, workers, resp.Result.Data)
}

func TestCloseRequiresSession(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	resp := p.Handle(context.Background(), &protocol.RequestMessage{
		RequestID: "r1", Op: protocol.OpClose, Args: map[string]interface{}{},
	})
	require.Equal(t, protocol.StatusRequestErrorInvalidArgs, resp.Status.Code)
	require.Contains(t, resp.Status.Message, protocol.ArgsSession)
}

func TestCloseUnknownSession(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	resp := p.Handle(context.Background(), &protocol.RequestMessage{
		RequestID: "r1", Op: protocol.OpClose,
		Args: map[string]interface{}{protocol.ArgsSession: "nope"},
	})
	require.Equal(t, protocol.StatusRequestErrorInvalidArgs, resp.Status.Code)
	require.Contains(t, resp.Status.Message, "no session named nope")
}

func TestCloseKillsSession(t *testing.T) {
	p, registry, _ := newTestProcessor(t)

	p.Handle(context.Background(), evalRequest("s1", "x = 1", nil))
	require.Equal(t, 1, registry.Len())

	resp := p.Handle(context.Background(), &protocol.RequestMessage{
		RequestID: "r1", Op: protocol.OpClose,
		Args: map[string]interface{}{protocol.ArgsSession: "s1"},
	})
	require.Equal(t, protocol.StatusNoContent, resp.Status.Code)
	require.Equal(t, 0, registry.Len())

	// The id has no memory of prior occupancy; eval recreates it empty.
	resp = p.Handle(context.Background(), evalRequest("s1", "x", nil))
	require.Equal(t, protocol.StatusServerErrorScriptEvaluation, resp.Status.Code)
}

func TestUnknownOp(t *testing.T) {
	p, _, _ := newTestProcessor(t)

	resp := p.Handle(context.Background(), &protocol.RequestMessage{
		RequestID: "r1", Op: "flush",
		Args: map[string]interface{}{protocol.ArgsSession: "s1"},
	})
	require.Equal(t, protocol.StatusRequestErrorInvalidArgs, resp.Status.Code)
	require.Contains(t, resp.Status.Message, "flush")
}
