// Package gojahost provides an in-process ScriptHost backed by the goja
// JavaScript engine. There is no real browser: each Navigate builds a fresh
// global environment, runs the injected scripts in order, and wires the
// page's post function straight to the bridge. It exists for headless
// automation and for exercising the full bridge protocol in tests.
package gojahost

import (
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/alx-home/webview"
	"github.com/alx-home/webview/internal/logging"
	"github.com/alx-home/webview/internal/werr"
)

// preamble prepares the page environment before injected scripts run:
// window aliases the global object and crypto provides the byte source the
// bootstrap's id generator expects.
const preamble = `
var window = this;
window.window = window;
window.crypto = {
   getRandomValues: function(arr) {
      for (var i = 0; i < arr.length; i++) {
         arr[i] = Math.floor(Math.random() * 256);
      }
      return arr;
   }
};
`

// script is the engine-side token for one injected script. Identity is
// pointer identity.
type script struct {
	source string
}

// Option configures a Host.
type Option func(*Host)

// WithLogger routes host logging through l.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.log = &logging.Logger{Logger: l} }
}

// Host is a headless ScriptHost. The goja runtime is not goroutine-safe;
// every engine touch is serialized behind mu. Messages posted by the page
// are handed to the bridge on a dedicated delivery goroutine so a busy
// dispatch loop can never deadlock an in-flight evaluation.
type Host struct {
	log *logging.Logger

	mu      chan struct{} // 1-slot semaphore guarding vm and scripts
	vm      *goja.Runtime
	scripts []*script
	url     string

	onMessage func(string)
	msgs      chan string
	quit      chan struct{}
	closed    bool
}

// New creates a host. Call Navigate (or webview.Window.Navigate) to load a
// page before expecting script activity.
func New(opts ...Option) *Host {
	h := &Host{
		log:  logging.NewNop(),
		mu:   make(chan struct{}, 1),
		msgs: make(chan string, 1024),
		quit: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.deliverLoop()
	return h
}

func (h *Host) lock()   { h.mu <- struct{}{} }
func (h *Host) unlock() { <-h.mu }

func (h *Host) deliverLoop() {
	for {
		select {
		case <-h.quit:
			return
		case msg := <-h.msgs:
			h.lock()
			fn := h.onMessage
			h.unlock()
			if fn != nil {
				fn(msg)
			}
		}
	}
}

// post queues one page message for delivery. Called from inside script
// execution; must not block the engine.
func (h *Host) post(msg string) {
	select {
	case h.msgs <- msg:
	default:
		h.log.Warn("message queue full, dropping page message")
	}
}

// AddScript injects a script to run at the start of every subsequent page
// load. An already-loaded page is unaffected until the next Navigate.
func (h *Host) AddScript(source string) (webview.ScriptHandle, error) {
	h.lock()
	defer h.unlock()
	if h.closed {
		return nil, werr.New(werr.CodeInvalidState, "host is closed")
	}
	s := &script{source: source}
	h.scripts = append(h.scripts, s)
	return s, nil
}

// RemoveScript withdraws an injected script.
func (h *Host) RemoveScript(handle webview.ScriptHandle) error {
	h.lock()
	defer h.unlock()
	target, ok := handle.(*script)
	if !ok {
		return werr.New(werr.CodeInvalidArgument, "handle does not belong to this host")
	}
	for i, s := range h.scripts {
		if s == target {
			h.scripts = append(h.scripts[:i], h.scripts[i+1:]...)
			return nil
		}
	}
	return werr.New(werr.CodeNotFound, "script is not injected")
}

// SameScript compares engine handles by identity.
func (h *Host) SameScript(a, b webview.ScriptHandle) bool {
	sa, okA := a.(*script)
	sb, okB := b.(*script)
	return okA && okB && sa == sb
}

// OnMessage registers the receiver for page-posted messages.
func (h *Host) OnMessage(fn func(msg string)) {
	h.lock()
	defer h.unlock()
	h.onMessage = fn
}

// Eval evaluates js in the current page. Before the first Navigate there is
// no page; the snippet is dropped with a debug log, matching an engine that
// ignores evaluations before navigation completes.
func (h *Host) Eval(js string) error {
	h.lock()
	defer h.unlock()
	if h.closed {
		return werr.New(werr.CodeInvalidState, "host is closed")
	}
	if h.vm == nil {
		h.log.Debug("eval before first navigation dropped")
		return nil
	}
	if _, err := h.vm.RunString(js); err != nil {
		return werr.Wrap(werr.CodeUnspecified, err, "script evaluation failed")
	}
	return nil
}

// Navigate loads a fresh page: new global environment, then every injected
// script in order. A script error is logged and does not abort the load,
// like a page that carries on after a broken <script> element.
func (h *Host) Navigate(url string) error {
	h.lock()
	defer h.unlock()
	if h.closed {
		return werr.New(werr.CodeInvalidState, "host is closed")
	}

	vm := goja.New()
	if _, err := vm.RunString(preamble); err != nil {
		return werr.Wrap(werr.CodeUnspecified, err, "building page environment")
	}
	hostObj := vm.NewObject()
	if err := hostObj.Set("post", h.post); err != nil {
		return werr.Wrap(werr.CodeUnspecified, err, "building page environment")
	}
	if err := vm.GlobalObject().Set("__host__", hostObj); err != nil {
		return werr.Wrap(werr.CodeUnspecified, err, "building page environment")
	}

	h.vm = vm
	h.url = url
	for _, s := range h.scripts {
		if _, err := vm.RunString(s.source); err != nil {
			h.log.Warn("injected script failed", zap.Error(err))
		}
	}
	h.log.Debug("page loaded", zap.String("url", url))
	return nil
}

// URL reports the current page location.
func (h *Host) URL() string {
	h.lock()
	defer h.unlock()
	return h.url
}

// Close tears the engine down. Pending deliveries are discarded.
func (h *Host) Close() error {
	h.lock()
	defer h.unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.vm = nil
	close(h.quit)
	return nil
}
