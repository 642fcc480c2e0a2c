// Package bridge implements the bidirectional call protocol between native
// code and the hosted page: message routing, promise settlement, argument
// marshaling, error propagation, and termination-time draining.
//
// All bindings, reverse bindings, and the pending-call table are confined to
// the dispatch loop goroutine. The only lock is a reader/writer mutex on the
// stopping flag; it is sampled and released before any queue send, never held
// across one, so a full queue cannot stall the teardown writer. Races between
// a submission and the drain are decided by a loop-confined teardown flag:
// work enqueued before the drain snapshot is drained with it, work enqueued
// after settles immediately with a Canceled outcome.
package bridge

import (
	"context"
	"sort"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/alx-home/webview/internal/codec"
	"github.com/alx-home/webview/internal/dispatch"
	"github.com/alx-home/webview/internal/id"
	"github.com/alx-home/webview/internal/logging"
	"github.com/alx-home/webview/internal/monitoring"
	"github.com/alx-home/webview/internal/script"
	"github.com/alx-home/webview/internal/werr"
)

// Evaluator is the slice of the host surface the bridge drives directly.
type Evaluator interface {
	Eval(js string) error
}

// Config wires a bridge to its collaborators.
type Config struct {
	Host    Evaluator
	Loop    *dispatch.Loop
	Scripts *script.Manager
	Nonce   string
	Logger  *logging.Logger
	Metrics *monitoring.Metrics // optional
}

// Bridge orchestrates the call protocol for one window instance.
type Bridge struct {
	log     *logging.Logger
	loop    *dispatch.Loop
	host    Evaluator
	scripts *script.Manager
	nonce   string
	metrics *monitoring.Metrics
	ids     *id.Generator

	mu       sync.RWMutex
	stopping bool

	shutdownOnce sync.Once
	drained      chan struct{}

	// Loop-confined state. teardown turns true on the loop at the moment the
	// shutdown drain takes its snapshot; closures that run after it must not
	// touch the tables and settle their outcome directly.
	teardown bool
	bindings map[string]*binding
	reverse  map[string]func(*codec.ReverseReply)
	pending  *table
}

// New creates a bridge. The caller wires Host.OnMessage to OnMessage.
func New(cfg Config) *Bridge {
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Bridge{
		log:      log,
		loop:     cfg.Loop,
		host:     cfg.Host,
		scripts:  cfg.Scripts,
		nonce:    cfg.Nonce,
		metrics:  cfg.Metrics,
		ids:      id.NewGenerator(),
		drained:  make(chan struct{}),
		bindings: make(map[string]*binding),
		reverse:  make(map[string]func(*codec.ReverseReply)),
		pending:  newTable(log),
	}
}

func (b *Bridge) isStopping() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stopping
}

// Bind exposes fn to the page under name. Fails with a Duplicate error if
// the name is already bound, before any script mutation happens. On success
// the registration script is rewritten and an already-loaded page is
// notified directly.
func (b *Bridge) Bind(name string, fn interface{}) error {
	bd, err := newBinding(name, fn)
	if err != nil {
		return err
	}
	if b.isStopping() {
		return werr.New(werr.CodeCanceled, "bind %q: webview is terminating", name)
	}

	var bindErr error
	ok := b.loop.Invoke(func() {
		if b.teardown {
			bindErr = werr.New(werr.CodeCanceled, "bind %q: webview is terminating", name)
			return
		}
		if _, dup := b.bindings[name]; dup {
			bindErr = werr.New(werr.CodeDuplicate, "binding %q already exists", name)
			return
		}
		b.bindings[name] = bd
		if serr := b.refreshBindScript(); serr != nil {
			delete(b.bindings, name)
			bindErr = serr
			return
		}
		if b.metrics != nil {
			b.metrics.BindingsActive.Set(float64(len(b.bindings)))
		}
		b.eval(codec.EncodeBindNotice(name, b.nonce))
	})
	if !ok {
		return werr.New(werr.CodeCanceled, "bind %q: webview is terminating", name)
	}
	return bindErr
}

// Unbind removes a binding. Fails with a NotFound error for unknown names,
// leaving the registry untouched.
func (b *Bridge) Unbind(name string) error {
	if b.isStopping() {
		return werr.New(werr.CodeCanceled, "unbind %q: webview is terminating", name)
	}

	var unbindErr error
	ok := b.loop.Invoke(func() {
		if b.teardown {
			unbindErr = werr.New(werr.CodeCanceled, "unbind %q: webview is terminating", name)
			return
		}
		if _, exists := b.bindings[name]; !exists {
			unbindErr = werr.New(werr.CodeNotFound, "trying to unbind undefined binding %q", name)
			return
		}
		delete(b.bindings, name)
		if serr := b.refreshBindScript(); serr != nil {
			unbindErr = serr
			return
		}
		if b.metrics != nil {
			b.metrics.BindingsActive.Set(float64(len(b.bindings)))
		}
		b.eval(codec.EncodeUnbindNotice(name, b.nonce))
	})
	if !ok {
		return werr.New(werr.CodeCanceled, "unbind %q: webview is terminating", name)
	}
	return unbindErr
}

// BoundNames returns the currently bound names, sorted.
func (b *Bridge) BoundNames() []string {
	var names []string
	b.loop.Invoke(func() {
		names = b.boundNamesLocked()
	})
	return names
}

func (b *Bridge) boundNamesLocked() []string {
	names := make([]string, 0, len(b.bindings))
	for name := range b.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// refreshBindScript rewrites the registration script so its content equals
// the exact set of bound names. Loop-confined.
func (b *Bridge) refreshBindScript() error {
	return b.scripts.SetBindScript(script.BindScript(b.boundNamesLocked()))
}

// Eval schedules a script evaluation on the dispatch loop. The stopping lock
// is released before the queue send, which may block; a snippet that loses
// the race against the drain is dropped on the loop instead.
func (b *Bridge) Eval(js string) error {
	if b.isStopping() {
		return werr.New(werr.CodeCanceled, "eval: webview is terminating")
	}
	ok := b.loop.Dispatch(func() {
		if b.teardown {
			return
		}
		b.eval(js)
	})
	if !ok {
		return werr.New(werr.CodeCanceled, "eval: webview is terminating")
	}
	return nil
}

// eval performs the evaluation. Loop-confined; failures are logged, never
// propagated, so one broken snippet cannot stall other pending calls.
func (b *Bridge) eval(js string) {
	if b.metrics != nil {
		b.metrics.EvalsTotal.Inc()
	}
	if err := b.host.Eval(js); err != nil {
		b.log.Warn("script evaluation failed", zap.Error(err))
	}
}

// OnMessage receives one raw message from the script transport. Malformed
// input and nonce mismatches are logged and dropped.
func (b *Bridge) OnMessage(raw string) {
	msg, err := codec.Decode(raw, b.nonce)
	if err != nil {
		if b.metrics != nil {
			b.metrics.MessagesDropped.Inc()
		}
		b.log.Debug("dropping bridge message", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case *codec.ForwardCall:
		if b.isStopping() {
			// The page-side promise must still settle, never hang.
			b.loop.Dispatch(func() { b.replyError(m.ID, "webview is terminating") })
			return
		}
		b.loop.Dispatch(func() { b.handleForward(m) })
	case *codec.ReverseReply:
		b.loop.Dispatch(func() { b.handleReverseReply(m) })
	}
}

// handleForward services a script-initiated call. Loop-confined.
func (b *Bridge) handleForward(m *codec.ForwardCall) {
	bd, known := b.bindings[m.Method]
	if !known {
		// The registration script keeps names in sync, but a stale page can
		// race an Unbind; answer with a rejection instead of crashing.
		b.log.Warn("call to unknown binding", zap.String("method", m.Method), zap.String("id", m.ID))
		b.markCall(monitoring.DirectionInbound, monitoring.StatusError)
		b.replyError(m.ID, "binding \""+m.Method+"\" is not defined")
		return
	}
	if b.teardown {
		b.markCall(monitoring.DirectionInbound, monitoring.StatusCanceled)
		b.replyError(m.ID, "webview is terminating")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := newHandle(m.ID)
	h.cancel = cancel
	if !b.pending.put(h) {
		cancel()
		b.log.Warn("duplicate call id from page", zap.String("id", m.ID))
		b.replyError(m.ID, "duplicate call id")
		return
	}
	if b.metrics != nil {
		b.metrics.CallsInFlight.Inc()
	}

	go func() {
		defer h.finish()
		result, hasResult, err := bd.call(ctx, m.Params)
		b.completeInbound(h, result, hasResult, err)
	}()
}

// completeInbound runs on the handler goroutine and re-marshals the reply
// onto the dispatch loop. If shutdown already settled this call, the work's
// outcome is discarded silently.
func (b *Bridge) completeInbound(h *handle, result string, hasResult bool, err error) {
	if !h.trySettle() {
		return
	}
	dispatched := b.loop.Dispatch(func() {
		defer b.removePending(h.id)
		if err != nil {
			b.markCall(monitoring.DirectionInbound, monitoring.StatusError)
			b.replyError(h.id, err.Error())
			return
		}
		b.markCall(monitoring.DirectionInbound, monitoring.StatusOK)
		b.eval(codec.EncodeReply(h.id, codec.StatusOK, result, hasResult, b.nonce))
	})
	if !dispatched {
		b.log.Debug("reply dropped, dispatch loop closed", zap.String("id", h.id))
	}
}

// Call invokes the script-global function registered under name. Arguments
// are serialized synchronously; serialization failures and calls after
// shutdown fail immediately without enqueuing anything.
func (b *Bridge) Call(name string, args ...interface{}) (*Reply, error) {
	if len(args) == 0 {
		args = []interface{}{}
	}
	argsJSON, err := sonic.MarshalString(args)
	if err != nil {
		return nil, werr.Wrap(werr.CodeUnspecified, err, "call %q: argument serialization failed", name)
	}

	if b.isStopping() {
		return nil, werr.New(werr.CodeCanceled, "call %q: webview is terminating", name)
	}

	callID := b.ids.Call().String()
	rep := newReply(callID)
	h := newHandle(callID)
	h.reject = func(cause error) {
		rep.settle("", false, cause)
		h.finish()
	}

	// The queue send below may block while the loop is busy, so the stopping
	// lock must not be held here. A drain that began in the meantime is
	// handled on the loop: the teardown guard settles the future without ever
	// registering it.
	ok := b.loop.Dispatch(func() {
		if b.teardown {
			b.markCall(monitoring.DirectionOutbound, monitoring.StatusCanceled)
			h.reject(werr.New(werr.CodeCanceled, "call %q: webview is terminating", name))
			return
		}
		if !b.pending.put(h) {
			b.log.DPanic("generated call id collides", zap.String("id", callID))
			h.reject(werr.New(werr.CodeUnspecified, "call id collision"))
			return
		}
		b.reverse[callID] = func(m *codec.ReverseReply) {
			b.settleReverse(h, rep, m)
		}
		if b.metrics != nil {
			b.metrics.CallsInFlight.Inc()
		}
		b.eval(codec.EncodeReverseCall(name, callID, b.nonce, argsJSON))
	})
	if !ok {
		return nil, werr.New(werr.CodeCanceled, "call %q: webview is terminating", name)
	}
	return rep, nil
}

// settleReverse consumes a reverse binding exactly once. Loop-confined.
func (b *Bridge) settleReverse(h *handle, rep *Reply, m *codec.ReverseReply) {
	if !h.trySettle() {
		return
	}
	defer h.finish()
	b.removePending(h.id)

	if m.Error {
		b.markCall(monitoring.DirectionOutbound, monitoring.StatusError)
		rep.settle("", false, werr.New(werr.CodeRejected, "%s", rejectionMessage(m)))
		return
	}
	b.markCall(monitoring.DirectionOutbound, monitoring.StatusOK)
	rep.settle(m.Result, m.HasResult, nil)
}

// rejectionMessage extracts the page-supplied failure message. The result
// field holds string-encoded JSON; fall back to the raw text when it is not
// a JSON string.
func rejectionMessage(m *codec.ReverseReply) string {
	if !m.HasResult {
		return "rejected by script"
	}
	var msg string
	if err := sonic.UnmarshalString(m.Result, &msg); err == nil {
		return msg
	}
	return m.Result
}

// handleReverseReply routes a reply to its stored reverse binding.
// Loop-confined.
func (b *Bridge) handleReverseReply(m *codec.ReverseReply) {
	complete, known := b.reverse[m.ID]
	if !known {
		if b.metrics != nil {
			b.metrics.MessagesDropped.Inc()
		}
		b.log.Debug("reply for unknown call", zap.String("id", m.ID))
		return
	}
	delete(b.reverse, m.ID)
	complete(m)
}

// replyError settles the page-side promise for id with an error. The message
// is serialized so the page's JSON.parse round-trip yields a string.
// Loop-confined.
func (b *Bridge) replyError(id, message string) {
	payload, err := sonic.MarshalString(message)
	if err != nil {
		payload = `"unspecified error"`
	}
	b.eval(codec.EncodeReply(id, codec.StatusError, payload, true, b.nonce))
}

// removePending removes the handle for id exactly once. Loop-confined.
func (b *Bridge) removePending(id string) {
	if b.pending.remove(id) && b.metrics != nil {
		b.metrics.CallsInFlight.Dec()
	}
}

// PendingCalls reports the number of in-flight calls.
func (b *Bridge) PendingCalls() int {
	n := 0
	b.loop.Invoke(func() { n = b.pending.size() })
	return n
}

// Shutdown marks the bridge stopping, forces a Canceled settlement on every
// still-pending call, joins their underlying computations, and finally
// closes the dispatch loop. Blocking; called once by the teardown owner.
// Safe to call concurrently; late callers wait for the drain to finish.
func (b *Bridge) Shutdown() {
	b.shutdownOnce.Do(func() {
		defer close(b.drained)

		b.mu.Lock()
		b.stopping = true
		b.mu.Unlock()

		var stragglers []*handle
		b.loop.Invoke(func() {
			b.teardown = true
			stragglers = b.pending.snapshot()
		})

		for _, h := range stragglers {
			h := h
			if h.trySettle() {
				if h.reject != nil {
					// Outbound: settle the native future before the join so
					// every caller observes the rejection.
					h.reject(werr.New(werr.CodeCanceled, "webview terminated"))
					b.loop.Dispatch(func() {
						delete(b.reverse, h.id)
						b.removePending(h.id)
						b.markCall(monitoring.DirectionOutbound, monitoring.StatusCanceled)
					})
				} else {
					// Inbound: the page-side promise must still settle.
					b.loop.Dispatch(func() {
						b.replyError(h.id, "webview is terminating")
						b.removePending(h.id)
						b.markCall(monitoring.DirectionInbound, monitoring.StatusCanceled)
					})
				}
			}
			if h.cancel != nil {
				h.cancel()
			}
		}

		for _, h := range stragglers {
			<-h.done
		}

		if len(stragglers) > 0 {
			b.log.Info("drained pending bridge calls", zap.Int("count", len(stragglers)))
		}

		// Runs every queued continuation, then stops the loop goroutine.
		b.loop.Close()
	})
	<-b.drained
}

func (b *Bridge) markCall(direction, status string) {
	if b.metrics != nil {
		b.metrics.CallsTotal.WithLabelValues(direction, status).Inc()
	}
}
