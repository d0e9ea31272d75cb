package console

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gremd/internal/config"
	"gremd/internal/eval"
	"gremd/internal/graph"
	"gremd/internal/protocol"
	"gremd/internal/server"
)

// storeEvaluator persists "k=v" scripts and reads back bare names.
func storeEvaluator() eval.Evaluator {
	return eval.Func(func(ctx context.Context, req eval.Request) (interface{}, error) {
		script := strings.TrimSpace(req.Script)
		if script == "fail" {
			return nil, eval.Errorf("no can do")
		}
		if script == "lang" {
			return req.Language, nil
		}
		if name, value, ok := strings.Cut(script, "="); ok {
			req.Bindings[strings.TrimSpace(name)] = strings.TrimSpace(value)
			return nil, nil
		}
		v, ok := req.Bindings[script]
		if !ok {
			return nil, eval.Errorf("No such property: %s", script)
		}
		return v, nil
	})
}

func startServer(t *testing.T) (*server.Server, string) {
	t.Helper()

	settings := config.Settings{
		SessionTimeout: config.Duration(time.Hour),
		SweepInterval:  config.Duration(time.Hour),
	}
	srv := server.New(settings, graph.NewManager(), storeEvaluator())
	t.Cleanup(srv.Registry.Shutdown)

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleGremlin))
	t.Cleanup(ts.Close)

	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestDriverSubmitRoundTrip(t *testing.T) {
	_, url := startServer(t)

	d := NewDriver()
	require.NoError(t, d.Connect(url))
	t.Cleanup(func() { d.Close() })
	require.NotEmpty(t, d.Session(), "a session id is generated when none is configured")

	result, err := d.Submit("x = hello")
	require.NoError(t, err)
	require.Nil(t, result, "assignments come back as no content")

	result, err = d.Submit("x")
	require.NoError(t, err)
	require.Equal(t, "hello", result)
}

func TestDriverConfigureTakesEffectOnConnect(t *testing.T) {
	_, url := startServer(t)

	d := NewDriver()
	require.NoError(t, d.Configure(map[string]interface{}{
		"session":  "console-1",
		"language": "gremlin-lang",
	}))
	require.NoError(t, d.Connect(url))
	t.Cleanup(func() { d.Close() })

	require.Equal(t, "console-1", d.Session())

	result, err := d.Submit("lang")
	require.NoError(t, err)
	require.Equal(t, "gremlin-lang", result)
}

func TestDriverConfigureRejectsUnknownOption(t *testing.T) {
	d := NewDriver()
	require.Error(t, d.Configure(map[string]interface{}{"volume": 11}))
	require.Error(t, d.Configure(map[string]interface{}{"session": ""}))
}

func TestDriverSubmitRaisesRemoteError(t *testing.T) {
	_, url := startServer(t)

	d := NewDriver()
	require.NoError(t, d.Connect(url))
	t.Cleanup(func() { d.Close() })

	_, err := d.Submit("fail")
	require.Error(t, err)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.Equal(t, protocol.StatusServerErrorScriptEvaluation, remoteErr.Code)
	require.Equal(t, "no can do", remoteErr.Message)
	require.False(t, remoteErr.IsRequestError())
}

func TestDriverCloseSession(t *testing.T) {
	srv, url := startServer(t)

	d := NewDriver()
	require.NoError(t, d.Connect(url))
	t.Cleanup(func() { d.Close() })

	_, err := d.Submit("x = 1")
	require.NoError(t, err)
	require.Equal(t, 1, srv.Registry.Len())

	require.NoError(t, d.CloseSession())
	require.Equal(t, 0, srv.Registry.Len())

	// Closing again reports the session as unknown.
	err = d.CloseSession()
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	require.True(t, remoteErr.IsRequestError())
}

func TestDriverSubmitWithoutConnect(t *testing.T) {
	d := NewDriver()
	_, err := d.Submit("x")
	require.Error(t, err)
	require.Error(t, d.CloseSession())
	require.NoError(t, d.Close())
}
