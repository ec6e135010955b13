package hooks

import "fmt"

// Hook is the capability every request-pipeline participant
// implements: inspect req and either claim it or decline.
type Hook interface {
	Evaluate(req *RequestData) (Result, error)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(req *RequestData) (Result, error)

// Evaluate calls f.
func (f HookFunc) Evaluate(req *RequestData) (Result, error) { return f(req) }

// Registry is the ordered, append-only hook chain. Registration only
// happens during startup; Freeze locks it, after which Dispatch never
// touches a mutex.
type Registry struct {
	hooks  []Hook
	frozen bool
}

// NewRegistry returns an empty, unfrozen Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends h to the chain. Panics if the registry has already
// been frozen, since runtime mutation is not supported.
func (r *Registry) Register(h Hook) {
	if r.frozen {
		panic(fmt.Sprintf("hooks: Register called on frozen registry with %T", h))
	}
	r.hooks = append(r.hooks, h)
}

// Freeze locks the registry against further registration. Dispatch may
// be called concurrently from many goroutines once frozen.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Dispatch offers req to each hook in registration order and returns
// the first claimed Result. If none claim, the returned Result is the
// zero value (Claimed == false); callers are expected to fall back to
// a built-in 404.
func (r *Registry) Dispatch(req *RequestData) (Result, error) {
	for _, h := range r.hooks {
		res, err := h.Evaluate(req)
		if err != nil {
			return Result{}, err
		}
		if res.Claimed {
			return res, nil
		}
	}
	return Result{}, nil
}
