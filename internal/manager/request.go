package manager

import (
	"fmt"

	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// ModelSpecKey is the model code key of a map model spec.
const ModelSpecKey = "model-code"

// ModelSpec selects what to discover.
type ModelSpec struct {
	// ModelCode selects bindings by model code. It is dash-cased before
	// matching.
	ModelCode string

	// Params are passed to the bridge exemplar and override binding
	// defaults.
	Params map[string]any
}

// request is a normalised discovery request.
type request struct {
	modelCode string
	init      map[string]any
}

// normalize validates a Connect argument. spec may be nil (probe every
// discoverable binding), a model code string, a map carrying ModelSpecKey,
// or a ModelSpec. An empty model code also probes every discoverable
// binding, passing the spec's parameters to each. init provides defaults
// for the spec's parameters.
func normalize(spec any, init map[string]any) (request, error) {
	var req request

	switch s := spec.(type) {
	case nil:
		req.init = map[string]any{}
	case string:
		req.modelCode = thing.DashCase(s)
		req.init = map[string]any{}
	case map[string]any:
		code, ok := s[ModelSpecKey].(string)
		if !ok {
			return request{}, fmt.Errorf("%w: %q must be a string, got %T", ErrInvalidArgument, ModelSpecKey, s[ModelSpecKey])
		}
		req.modelCode = thing.DashCase(code)
		req.init = thing.CloneMap(s)
		delete(req.init, ModelSpecKey)
	case ModelSpec:
		return normalize(s.asMap(), init)
	case *ModelSpec:
		if s == nil {
			return request{}, fmt.Errorf("%w: nil model spec", ErrInvalidArgument)
		}
		return normalize(s.asMap(), init)
	default:
		return request{}, fmt.Errorf("%w: unsupported model spec %T", ErrInvalidArgument, spec)
	}

	req.init = thing.Defaults(init, req.init)
	return req, nil
}

func (s ModelSpec) asMap() map[string]any {
	m := thing.CloneMap(s.Params)
	if m == nil {
		m = make(map[string]any)
	}
	m[ModelSpecKey] = s.ModelCode
	return m
}
