package eval

import (
	"context"
	"fmt"
)

// Request is one script evaluation against a concrete set of bindings. The
// bindings map is the session's live map: assignments the script performs are
// expected to land in it directly.
type Request struct {
	Script   string
	Language string
	Bindings map[string]interface{}
}

// Evaluator is the opaque script engine boundary. Implementations are not
// required to be safe for concurrent use on the same bindings map; callers
// serialize per session.
type Evaluator interface {
	Eval(ctx context.Context, req Request) (interface{}, error)
}

// Func adapts a plain function to the Evaluator interface.
type Func func(ctx context.Context, req Request) (interface{}, error)

func (f Func) Eval(ctx context.Context, req Request) (interface{}, error) {
	return f(ctx, req)
}

// Error is a failure raised by the script itself, as opposed to a failure of
// the surrounding machinery. The message is surfaced verbatim to the client.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return e.Msg }

// Errorf builds a script evaluation error.
func Errorf(format string, args ...interface{}) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}
