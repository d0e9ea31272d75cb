package op

import (
	"context"
	"errors"
	"fmt"

	"gremd/internal/eval"
	"gremd/internal/graph"
	"gremd/internal/logger"
	"gremd/internal/protocol"
	"gremd/internal/session"
)

// Processor routes session-scoped requests to eval or close handling. All
// validation happens before the registry is touched, so a malformed request
// can never create a session as a side effect.
type Processor struct {
	registry  *session.Registry
	graphs    *graph.Manager
	evaluator eval.Evaluator
}

func NewProcessor(registry *session.Registry, graphs *graph.Manager, evaluator eval.Evaluator) *Processor {
	return &Processor{
		registry:  registry,
		graphs:    graphs,
		evaluator: evaluator,
	}
}

// Handle dispatches one request and always produces a response; failures are
// encoded in the response status, never returned.
func (p *Processor) Handle(ctx context.Context, msg *protocol.RequestMessage) *protocol.ResponseMessage {
	switch msg.Op {
	case protocol.OpEval:
		return p.evalOp(ctx, msg)
	case protocol.OpClose:
		return p.closeOp(msg)
	default:
		return errorResponse(msg, protocol.StatusRequestErrorInvalidArgs,
			fmt.Sprintf("Unknown [%s] op code", msg.Op))
	}
}

func (p *Processor) evalOp(ctx context.Context, msg *protocol.RequestMessage) *protocol.ResponseMessage {
	sessionID, ok := msg.Session()
	if !ok {
		return errorResponse(msg, protocol.StatusRequestErrorInvalidArgs,
			fmt.Sprintf("A message with an [%s] op code requires a [%s] argument",
				protocol.OpEval, protocol.ArgsSession))
	}

	script, ok := msg.Gremlin()
	if !ok {
		return errorResponse(msg, protocol.StatusRequestErrorInvalidArgs,
			fmt.Sprintf("A message with an [%s] op code requires a [%s] argument",
				protocol.OpEval, protocol.ArgsGremlin))
	}

	aliases, hasAliases := msg.StringMapArg(protocol.ArgsAliases)
	rebindings, hasRebindings := msg.StringMapArg(protocol.ArgsRebindings)
	if hasAliases && hasRebindings {
		return errorResponse(msg, protocol.StatusRequestErrorInvalidArgs,
			"Prefer use of the 'aliases' parameter over 'rebindings' and do not use both")
	}
	if hasRebindings {
		aliases = rebindings
	}

	overrides, _ := msg.MapArg(protocol.ArgsBindings)

	s := p.registry.GetOrCreate(sessionID)
	s.Touch()

	logger.Logger.Debug().
		Str("request", msg.RequestID).
		Str("session", sessionID).
		Msg("in-session eval request")

	result, err := s.RunExclusive(func(bindings map[string]interface{}) (interface{}, error) {
		effective, overlay, err := resolveBindings(bindings, aliases, overrides, p.graphs)
		if err != nil {
			return nil, err
		}

		value, err := p.evaluator.Eval(ctx, eval.Request{
			Script:   script,
			Language: msg.Language(),
			Bindings: effective,
		})
		if err != nil {
			return nil, err
		}

		persistBindings(bindings, effective, overlay)
		return value, nil
	})

	if err != nil {
		var argErr *ArgError
		var scriptErr *eval.Error
		switch {
		case errors.As(err, &argErr):
			return errorResponse(msg, protocol.StatusRequestErrorInvalidArgs, argErr.Msg)
		case errors.As(err, &scriptErr):
			return errorResponse(msg, protocol.StatusServerErrorScriptEvaluation, scriptErr.Msg)
		default:
			return errorResponse(msg, protocol.StatusServerError, err.Error())
		}
	}

	if result == nil {
		return &protocol.ResponseMessage{
			RequestID: msg.RequestID,
			Status:    protocol.ResponseStatus{Code: protocol.StatusNoContent},
		}
	}
	return &protocol.ResponseMessage{
		RequestID: msg.RequestID,
		Status:    protocol.ResponseStatus{Code: protocol.StatusSuccess},
		Result:    protocol.ResponseResult{Data: result},
	}
}

func (p *Processor) closeOp(msg *protocol.RequestMessage) *protocol.ResponseMessage {
	sessionID, ok := msg.Session()
	if !ok {
		return errorResponse(msg, protocol.StatusRequestErrorInvalidArgs,
			fmt.Sprintf("A message with an [%s] op code requires a [%s] argument",
				protocol.OpClose, protocol.ArgsSession))
	}

	if err := p.registry.Close(sessionID); err != nil {
		return errorResponse(msg, protocol.StatusRequestErrorInvalidArgs,
			fmt.Sprintf("There was no session named %s to close", sessionID))
	}

	return &protocol.ResponseMessage{
		RequestID: msg.RequestID,
		Status:    protocol.ResponseStatus{Code: protocol.StatusNoContent},
	}
}

func errorResponse(msg *protocol.RequestMessage, code int, text string) *protocol.ResponseMessage {
	return &protocol.ResponseMessage{
		RequestID: msg.RequestID,
		Status:    protocol.ResponseStatus{Code: code, Message: text},
	}
}
