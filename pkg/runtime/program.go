package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fortiblox/X1-Nimbus/pkg/abi"
	"github.com/fortiblox/X1-Nimbus/pkg/failure"
)

var (
	// ErrDuplicateKind is returned when registering a kind twice.
	ErrDuplicateKind = errors.New("program kind already registered")

	// ErrUnknownKind is returned when deploying an unregistered kind.
	ErrUnknownKind = errors.New("unknown program kind")
)

// Program is executable program code. Call runs one method to completion
// and returns exactly one value; methods without a result return abi.Null().
type Program interface {
	Call(h Host, method string, args abi.Args) (abi.Value, error)
}

// Method is one exported entry point.
type Method func(h Host, args abi.Args) (abi.Value, error)

// Methods is a Program built from a method table.
type Methods map[string]Method

var _ Program = Methods(nil)

// Call dispatches to the named method.
func (m Methods) Call(h Host, method string, args abi.Args) (abi.Value, error) {
	fn, ok := m[method]
	if !ok {
		return abi.Value{}, failure.New(failure.KindNoSuchMethod, "method %q not found", method)
	}
	return fn(h, args)
}

// Registry maps program kind names to code. Deployment records in the world
// state refer to programs by kind name.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Program
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Program)}
}

// Register adds a program kind.
func (r *Registry) Register(kind string, p Program) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kinds[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind)
	}
	r.kinds[kind] = p
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(kind string, p Program) {
	if err := r.Register(kind, p); err != nil {
		panic(err)
	}
}

// Lookup returns the program of a kind.
func (r *Registry) Lookup(kind string) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.kinds[kind]
	return p, ok
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
