package op

import (
	"fmt"
	"reflect"

	"gremd/internal/graph"
)

// ArgError is a validation failure in the client's request arguments. The
// dispatcher maps it to the invalid-request-arguments status.
type ArgError struct {
	Msg string
}

func (e *ArgError) Error() string { return e.Msg }

func argErrorf(format string, args ...interface{}) *ArgError {
	return &ArgError{Msg: fmt.Sprintf(format, args...)}
}

// resolveBindings builds the working binding set for one evaluation: the
// session's persistent bindings, aliases resolved against the graph and
// traversal-source registries, and explicit overrides applied last. The
// returned overlay records which entries came from the request so they can be
// kept out of the session's persistent state afterwards.
func resolveBindings(base map[string]interface{}, aliases map[string]string,
	overrides map[string]interface{}, gm *graph.Manager) (effective, overlay map[string]interface{}, err error) {

	effective = make(map[string]interface{}, len(base)+len(aliases)+len(overrides))
	for k, v := range base {
		effective[k] = v
	}
	overlay = make(map[string]interface{}, len(aliases)+len(overrides))

	for local, global := range aliases {
		if g, ok := gm.Graph(global); ok {
			effective[local] = g
			overlay[local] = g
			continue
		}
		if ts, ok := gm.TraversalSource(global); ok {
			effective[local] = ts
			overlay[local] = ts
			continue
		}
		return nil, nil, argErrorf(
			"Could not alias [%s] to [%s] as [%s] not in the Graph or TraversalSource global bindings",
			local, global, global)
	}

	for k, v := range overrides {
		effective[k] = v
		overlay[k] = v
	}

	return effective, overlay, nil
}

// persistBindings copies post-evaluation state back into the session's
// persistent bindings. Request-supplied overlay entries are discarded unless
// the script reassigned them; everything else the script left in the working
// set persists for the session's later requests.
func persistBindings(base, effective, overlay map[string]interface{}) {
	for k, v := range effective {
		if ov, fromOverlay := overlay[k]; fromOverlay && sameValue(ov, v) {
			continue
		}
		base[k] = v
	}
}

func sameValue(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}
