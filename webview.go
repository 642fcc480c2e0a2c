package webview

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/alx-home/webview/internal/bridge"
	"github.com/alx-home/webview/internal/dispatch"
	"github.com/alx-home/webview/internal/id"
	"github.com/alx-home/webview/internal/logging"
	"github.com/alx-home/webview/internal/monitoring"
	"github.com/alx-home/webview/internal/script"
	"github.com/alx-home/webview/internal/werr"
)

// DefaultPostFunction is the JS expression the bootstrap uses to post
// messages back to the host when no override is configured. Hosts that
// install a different transport pass their own expression via
// WithPostFunction.
const DefaultPostFunction = "window.__host__.post"

type options struct {
	logger    *logging.Logger
	registry  *Registry
	metrics   prometheus.Registerer
	postFn    string
	queueSize int
}

// Option configures a Window.
type Option func(*options)

// WithLogger routes window and bridge logging through l.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = &logging.Logger{Logger: l} }
}

// WithRegistry tracks the window in reg instead of DefaultRegistry.
func WithRegistry(reg *Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithMetrics registers bridge collectors with reg. Use a fresh registerer
// per window when running several windows in one process.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.metrics = reg }
}

// WithPostFunction overrides the JS expression used by the bootstrap to post
// messages to the host.
func WithPostFunction(expr string) Option {
	return func(o *options) { o.postFn = expr }
}

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(n int) Option {
	return func(o *options) { o.queueSize = n }
}

// Window hosts one page behind a ScriptHost and exposes the binding bridge.
// All methods are safe for concurrent use; operations after Close fail with
// a Canceled error.
type Window struct {
	id      id.WindowID
	nonce   string
	log     *logging.Logger
	host    ScriptHost
	loop    *dispatch.Loop
	scripts *script.Manager
	bridge  *bridge.Bridge

	registry  *Registry
	closeOnce sync.Once
	closeErr  error
}

// engineAdapter narrows ScriptHost to the script manager's engine surface.
type engineAdapter struct {
	host ScriptHost
}

func (e engineAdapter) AddScript(source string) (interface{}, error) {
	return e.host.AddScript(source)
}

func (e engineAdapter) RemoveScript(handle interface{}) error {
	return e.host.RemoveScript(handle)
}

func (e engineAdapter) SameScript(a, b interface{}) bool {
	return e.host.SameScript(a, b)
}

// New creates a window over host, installs the bridge bootstrap as the first
// injected script, and registers the window. The host's message callback is
// claimed by the bridge.
func New(host ScriptHost, opts ...Option) (*Window, error) {
	if host == nil {
		return nil, werr.New(werr.CodeMissingDependency, "script host is required")
	}

	o := options{
		logger:    logging.NewDefault(),
		registry:  DefaultRegistry(),
		postFn:    DefaultPostFunction,
		queueSize: 64,
	}
	for _, opt := range opts {
		opt(&o)
	}

	gen := id.NewGenerator()
	w := &Window{
		id:       gen.Window(),
		nonce:    id.Nonce(),
		log:      o.logger.Named("webview"),
		host:     host,
		loop:     dispatch.New(o.queueSize),
		registry: o.registry,
	}
	w.scripts = script.NewManager(engineAdapter{host: host})

	var metrics *monitoring.Metrics
	if o.metrics != nil {
		metrics = monitoring.New(o.metrics)
	}

	w.bridge = bridge.New(bridge.Config{
		Host:    host,
		Loop:    w.loop,
		Scripts: w.scripts,
		Nonce:   w.nonce,
		Logger:  w.log,
		Metrics: metrics,
	})
	host.OnMessage(w.bridge.OnMessage)

	var bootErr error
	w.loop.Invoke(func() {
		_, bootErr = w.scripts.Add(script.Bootstrap(o.postFn, w.nonce))
	})
	if bootErr != nil {
		w.loop.Close()
		return nil, werr.Wrap(werr.CodeUnspecified, bootErr, "installing bridge bootstrap")
	}

	w.registry.add(w)
	w.log.Debug("window created", zap.String("id", w.id.String()))
	return w, nil
}

// ID returns the window's identifier.
func (w *Window) ID() string { return w.id.String() }

// Bind exposes fn to the page as a global function called name. fn may be
// any non-variadic function; an optional leading context.Context is canceled
// when the window shuts down, and results follow the usual
// ([value][, error]) shapes. Binding a name twice fails with a Duplicate
// error and leaves the original handler callable.
func (w *Window) Bind(name string, fn interface{}) error {
	return w.bridge.Bind(name, fn)
}

// Unbind removes a bound function. Unknown names fail with a NotFound error.
func (w *Window) Unbind(name string) error {
	return w.bridge.Unbind(name)
}

// Call invokes the script-global function registered under name and returns
// a typed promise for its result. Serialization failures and calls after
// shutdown fail synchronously; nothing is enqueued in that case.
func Call[T any](w *Window, name string, args ...interface{}) (*Promise[T], error) {
	rep, err := w.bridge.Call(name, args...)
	if err != nil {
		return nil, err
	}
	return &Promise[T]{reply: rep}, nil
}

// Eval schedules a script evaluation in the current page.
func (w *Window) Eval(js string) error {
	return w.bridge.Eval(js)
}

// Init injects a script that runs at the start of every subsequent page
// load, after the bridge bootstrap.
func (w *Window) Init(js string) error {
	var err error
	if !w.loop.Invoke(func() { _, err = w.scripts.Add(js) }) {
		return werr.New(werr.CodeCanceled, "init: webview is terminating")
	}
	return err
}

// Navigate points the page at url; an empty url loads about:blank.
func (w *Window) Navigate(url string) error {
	if url == "" {
		url = "about:blank"
	}
	var err error
	if !w.loop.Invoke(func() { err = w.host.Navigate(url) }) {
		return werr.New(werr.CodeCanceled, "navigate: webview is terminating")
	}
	return err
}

// Bindings returns the currently bound names, sorted.
func (w *Window) Bindings() []string {
	return w.bridge.BoundNames()
}

// PendingCalls reports the number of in-flight bridge calls.
func (w *Window) PendingCalls() int {
	return w.bridge.PendingCalls()
}

// Close drains the bridge and releases the host. Every outstanding promise
// settles (stragglers with a Canceled error) before window resources are
// released. Safe to call more than once.
func (w *Window) Close() error {
	w.closeOnce.Do(func() {
		w.bridge.Shutdown()
		w.closeErr = w.host.Close()
		w.registry.remove(w)
		w.log.Debug("window closed", zap.String("id", w.id.String()))
	})
	return w.closeErr
}

// Terminate is Close for callers that do not care about the host teardown
// error, mirroring a terminate-the-window request from native code.
func (w *Window) Terminate() {
	_ = w.Close()
}
