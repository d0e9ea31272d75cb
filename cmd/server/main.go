package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"gremd/internal/config"
	"gremd/internal/eval"
	"gremd/internal/graph"
	"gremd/internal/logger"
	"gremd/internal/server"
)

func main() {
	godotenv.Load()

	settings, err := config.Load(config.GetEnv("GREMD_CONFIG", "gremd.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load settings: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(settings.LogLevel, settings.LogPretty); err != nil {
		fmt.Fprintf(os.Stderr, "failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	graphs := graph.NewManager()
	g := graph.NewGraph("graph", nil)
	graphs.AddGraph(g)
	graphs.AddTraversalSource(&graph.TraversalSource{Name: "g", Graph: g})

	srv := server.New(settings, graphs, devEvaluator())
	srv.Run()
}

// devEvaluator is a stand-in script engine for running the server without a
// real one plugged in: `name` reads a binding, `name = <json literal>` writes
// one, anything else comes back verbatim. The production engine arrives via
// server.New like any other eval.Evaluator.
func devEvaluator() eval.Evaluator {
	return eval.Func(func(ctx context.Context, req eval.Request) (interface{}, error) {
		script := trim(req.Script)
		if script == "" {
			return nil, nil
		}

		if name, literal, ok := splitAssignment(script); ok {
			v, err := parseLiteral(literal)
			if err != nil {
				return nil, eval.Errorf("cannot evaluate [%s]: %v", req.Script, err)
			}
			req.Bindings[name] = v
			return v, nil
		}

		if isIdentifier(script) {
			v, ok := req.Bindings[script]
			if !ok {
				return nil, eval.Errorf("No such property: %s", script)
			}
			return v, nil
		}

		return script, nil
	})
}
