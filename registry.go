package webview

import "sync"

// Registry tracks live windows so a process can tie its lifetime to them,
// e.g. stop its UI loop when the last window closes. It replaces implicit
// global reference counting with an owned object: create one (or use
// DefaultRegistry), pass it to New via WithRegistry, and install an
// OnLastClosed hook. The hook runs on the goroutine that closed the last
// window, each time the count drops to zero.
type Registry struct {
	mu           sync.Mutex
	windows      map[string]*Window
	onLastClosed func()
}

// NewWindowRegistry creates an empty registry.
func NewWindowRegistry() *Registry {
	return &Registry{windows: make(map[string]*Window)}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry used when no explicit
// one is configured.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewWindowRegistry()
	})
	return defaultRegistry
}

// OnLastClosed installs the zero-windows hook.
func (r *Registry) OnLastClosed(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLastClosed = fn
}

// Len reports the number of open windows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

func (r *Registry) add(w *Window) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows[w.id.String()] = w
}

func (r *Registry) remove(w *Window) {
	r.mu.Lock()
	if _, tracked := r.windows[w.id.String()]; !tracked {
		r.mu.Unlock()
		return
	}
	delete(r.windows, w.id.String())
	hook := r.onLastClosed
	empty := len(r.windows) == 0
	r.mu.Unlock()

	if empty && hook != nil {
		hook()
	}
}
