// Package kernel implements the inner statistical procedure as a
// duck-typed capability: different method names bind to different
// concrete Kernel implementations sharing the same surface (load,
// prepare, process, gene fold changes). The orchestration substrate
// never inspects a kernel's internals; it only calls through this
// interface, selected by a registry keyed on method_name.
package kernel

import (
	"fmt"
	"sync"

	"github.com/gsaplatform/orchestrator/internal/domain"
)

// ProgressFunc reports fractional completion and a human-readable
// message. Implementations must tolerate being called at any rate; the
// caller is responsible for rate-limiting writes through to the
// Blackboard.
type ProgressFunc func(fraction float64, message string)

// Prepared is the kernel-specific normalized form of one Dataset, built
// once by Prepare and consumed by Process and GeneFoldChanges.
type Prepared struct {
	DatasetName string
	Matrix      ExpressionMatrix
	Design      *domain.Design
	Type        domain.DatasetType
}

// Kernel is the capability every method_name binds to. LoadLibraries is
// called once per process before first use (e.g. to memoize a pathway
// database release); Prepare normalizes one dataset; Process computes
// the pathway result table; GeneFoldChanges is optional and may return
// an empty table when the method has no fold-change notion.
type Kernel interface {
	Name() string
	LoadLibraries(pathwayRelease string) error
	Prepare(ds domain.Dataset) (Prepared, error)
	Process(p Prepared, progress ProgressFunc) (pathwayTable string, err error)
	GeneFoldChanges(p Prepared) (foldChangeTable string, err error)
}

// Registry dispatches a method_name to its bound Kernel, the plug-in
// shape the duck-typed dispatch calls for.
type Registry struct {
	mu      sync.RWMutex
	kernels map[string]Kernel
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kernels: make(map[string]Kernel)}
}

// Register binds a Kernel under its own Name(). It is an error to
// register two kernels under the same name.
func (r *Registry) Register(k Kernel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := k.Name()
	if name == "" {
		return fmt.Errorf("kernel registry: kernel name cannot be empty")
	}
	if _, exists := r.kernels[name]; exists {
		return fmt.Errorf("kernel registry: kernel %q already registered", name)
	}
	r.kernels[name] = k
	return nil
}

// Get returns the kernel bound to method_name, or an error if none is
// registered under that name.
func (r *Registry) Get(methodName string) (Kernel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.kernels[methodName]
	if !ok {
		return nil, fmt.Errorf("kernel registry: method %q not found", methodName)
	}
	return k, nil
}

// Names returns the registered method names, used to build the
// catalog's /methods listing.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.kernels))
	for name := range r.kernels {
		names = append(names, name)
	}
	return names
}
