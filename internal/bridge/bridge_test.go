package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alx-home/webview/internal/dispatch"
	"github.com/alx-home/webview/internal/logging"
	"github.com/alx-home/webview/internal/script"
	"github.com/alx-home/webview/internal/werr"
)

const testNonce = "test-nonce"

// fakeHost records every evaluated snippet and serves as the script engine.
type fakeHost struct {
	mu    sync.Mutex
	evals []string
}

type fakeScript struct {
	source string
}

func (f *fakeHost) Eval(js string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals = append(f.evals, js)
	return nil
}

func (f *fakeHost) AddScript(source string) (interface{}, error) {
	return &fakeScript{source: source}, nil
}

func (f *fakeHost) RemoveScript(handle interface{}) error { return nil }

func (f *fakeHost) SameScript(a, b interface{}) bool {
	return a.(*fakeScript) == b.(*fakeScript)
}

func (f *fakeHost) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.evals...)
}

func newTestBridge(t *testing.T) (*Bridge, *fakeHost) {
	t.Helper()
	host := &fakeHost{}
	loop := dispatch.New(16)
	b := New(Config{
		Host:    host,
		Loop:    loop,
		Scripts: script.NewManager(host),
		Nonce:   testNonce,
		Logger:  logging.NewNop(),
	})
	t.Cleanup(b.Shutdown)
	return b, host
}

// waitForEval blocks until the host has seen a snippet containing substr.
func waitForEval(t *testing.T, host *fakeHost, substr string) string {
	t.Helper()
	var found string
	require.Eventually(t, func() bool {
		for _, js := range host.snapshot() {
			if strings.Contains(js, substr) {
				found = js
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no eval containing %q", substr)
	return found
}

func forwardCall(id, method, params string) string {
	return fmt.Sprintf(`{"nonce":%q,"reverse":false,"id":%q,"method":%q,"params":%q}`,
		testNonce, id, method, params)
}

func reverseReply(id, method string, isErr bool, result string) string {
	msg := fmt.Sprintf(`{"nonce":%q,"reverse":true,"id":%q,"method":%q,"error":%v`,
		testNonce, id, method, isErr)
	if result != "" {
		msg += fmt.Sprintf(`,"result":%q`, result)
	}
	return msg + "}"
}

func TestInboundCall(t *testing.T) {
	b, host := newTestBridge(t)
	require.NoError(t, b.Bind("add", func(a, b float64) float64 { return a + b }))

	b.OnMessage(forwardCall("1", "add", "[2,3]"))

	js := waitForEval(t, host, `onReply("1"`)
	assert.Equal(t, `window.__webview__.onReply("1", 0, "5", "test-nonce")`, js)
}

func TestInboundVoidCall(t *testing.T) {
	b, host := newTestBridge(t)
	require.NoError(t, b.Bind("ping", func() {}))

	b.OnMessage(forwardCall("2", "ping", "[]"))

	js := waitForEval(t, host, `onReply("2"`)
	assert.Equal(t, `window.__webview__.onReply("2", 0, undefined, "test-nonce")`, js)
}

func TestInboundHandlerError(t *testing.T) {
	b, host := newTestBridge(t)
	require.NoError(t, b.Bind("fail", func() error { return errors.New("boom") }))

	b.OnMessage(forwardCall("3", "fail", "[]"))

	js := waitForEval(t, host, `onReply("3"`)
	assert.Contains(t, js, `onReply("3", 1, `)
	assert.Contains(t, js, "boom")
}

func TestInboundUnknownMethod(t *testing.T) {
	b, host := newTestBridge(t)

	b.OnMessage(forwardCall("4", "missing", "[]"))

	js := waitForEval(t, host, `onReply("4"`)
	assert.Contains(t, js, `onReply("4", 1, `)
	assert.Contains(t, js, "is not defined")
}

func TestInboundBadParams(t *testing.T) {
	b, host := newTestBridge(t)
	require.NoError(t, b.Bind("add", func(a, b float64) float64 { return a + b }))

	b.OnMessage(forwardCall("5", "add", "[1]"))

	js := waitForEval(t, host, `onReply("5"`)
	assert.Contains(t, js, `onReply("5", 1, `)
}

func TestInboundDuplicateID(t *testing.T) {
	b, host := newTestBridge(t)
	release := make(chan struct{})
	require.NoError(t, b.Bind("block", func() {
		<-release
	}))

	b.OnMessage(forwardCall("6", "block", "[]"))
	require.Eventually(t, func() bool { return b.PendingCalls() == 1 },
		2*time.Second, 5*time.Millisecond)

	// Same id while the first call is still in flight.
	b.OnMessage(forwardCall("6", "block", "[]"))
	js := waitForEval(t, host, "duplicate call id")
	assert.Contains(t, js, `onReply("6", 1, `)

	close(release)
	waitForEval(t, host, `onReply("6", 0, `)
}

func TestMessagesWithBadNonceAreDropped(t *testing.T) {
	b, host := newTestBridge(t)
	called := make(chan struct{}, 1)
	require.NoError(t, b.Bind("probe", func() { called <- struct{}{} }))

	b.OnMessage(`{"nonce":"wrong","reverse":false,"id":"7","method":"probe","params":"[]"}`)
	b.OnMessage(`not even json`)

	select {
	case <-called:
		t.Fatal("handler ran for a message with a foreign nonce")
	case <-time.After(100 * time.Millisecond):
	}
	for _, js := range host.snapshot() {
		assert.NotContains(t, js, `onReply("7"`)
	}
}

func TestBindDuplicate(t *testing.T) {
	b, host := newTestBridge(t)
	require.NoError(t, b.Bind("add", func(a, b float64) float64 { return a + b }))

	err := b.Bind("add", func() float64 { return 0 })
	assert.True(t, errors.Is(err, werr.ErrDuplicate))

	// The original handler stays callable.
	b.OnMessage(forwardCall("8", "add", "[2,3]"))
	js := waitForEval(t, host, `onReply("8"`)
	assert.Contains(t, js, `, 0, "5", `)
}

func TestUnbindUnknown(t *testing.T) {
	b, _ := newTestBridge(t)
	err := b.Unbind("never-bound")
	assert.True(t, errors.Is(err, werr.ErrNotFound))
}

func TestUnbindRemovesBinding(t *testing.T) {
	b, host := newTestBridge(t)
	require.NoError(t, b.Bind("add", func(a, b float64) float64 { return a + b }))
	require.NoError(t, b.Unbind("add"))

	b.OnMessage(forwardCall("9", "add", "[2,3]"))
	js := waitForEval(t, host, `onReply("9"`)
	assert.Contains(t, js, `onReply("9", 1, `)
	assert.Contains(t, js, "is not defined")
}

func TestBindNotices(t *testing.T) {
	b, host := newTestBridge(t)

	require.NoError(t, b.Bind("add", func() {}))
	waitForEval(t, host, `onBind("add", "test-nonce")`)

	require.NoError(t, b.Unbind("add"))
	waitForEval(t, host, `onUnbind("add", "test-nonce")`)
}

func TestBoundNamesSorted(t *testing.T) {
	b, _ := newTestBridge(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, b.Bind(name, func() {}))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, b.BoundNames())
}

func TestBindScriptTracksBindings(t *testing.T) {
	host := &fakeHost{}
	loop := dispatch.New(16)
	scripts := script.NewManager(host)
	b := New(Config{
		Host:    host,
		Loop:    loop,
		Scripts: scripts,
		Nonce:   testNonce,
		Logger:  logging.NewNop(),
	})
	t.Cleanup(b.Shutdown)

	require.NoError(t, b.Bind("beta", func() {}))
	require.NoError(t, b.Bind("alpha", func() {}))

	var sources []string
	loop.Invoke(func() { sources = scripts.Sources() })
	require.Len(t, sources, 1)
	assert.Equal(t, script.BindScript([]string{"alpha", "beta"}), sources[0])

	require.NoError(t, b.Unbind("beta"))
	loop.Invoke(func() { sources = scripts.Sources() })
	assert.Equal(t, script.BindScript([]string{"alpha"}), sources[0])
}

func TestOutboundCall(t *testing.T) {
	b, host := newTestBridge(t)

	rep, err := b.Call("multiply", 3, 4)
	require.NoError(t, err)

	js := waitForEval(t, host, "reverseCall")
	assert.Equal(t,
		fmt.Sprintf(`window.__webview__.reverseCall("multiply", %q, "test-nonce", "[3,4]")`, rep.ID()),
		js)

	b.OnMessage(reverseReply(rep.ID(), "multiply", false, "12"))

	result, hasResult, err := rep.Await(context.Background())
	require.NoError(t, err)
	assert.True(t, hasResult)
	assert.Equal(t, "12", result)
	assert.Equal(t, 0, b.PendingCalls())
}

func TestOutboundCallNoArgs(t *testing.T) {
	b, host := newTestBridge(t)

	rep, err := b.Call("tick")
	require.NoError(t, err)

	js := waitForEval(t, host, "reverseCall")
	assert.Contains(t, js, `"[]"`)

	b.OnMessage(reverseReply(rep.ID(), "tick", false, ""))

	_, hasResult, err := rep.Await(context.Background())
	require.NoError(t, err)
	assert.False(t, hasResult)
}

func TestOutboundCallRejected(t *testing.T) {
	b, host := newTestBridge(t)

	rep, err := b.Call("multiply", 1, 2)
	require.NoError(t, err)
	waitForEval(t, host, "reverseCall")

	b.OnMessage(reverseReply(rep.ID(), "multiply", true, `"no such function"`))

	_, _, err = rep.Await(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, werr.ErrRejected))
	assert.Contains(t, err.Error(), "no such function")
}

func TestOutboundAwaitHonorsContext(t *testing.T) {
	b, _ := newTestBridge(t)

	rep, err := b.Call("never-answers")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = rep.Await(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestReplyForUnknownCallIsDropped(t *testing.T) {
	b, host := newTestBridge(t)

	b.OnMessage(reverseReply("call_bogus", "multiply", false, "12"))

	// The bridge keeps working afterwards.
	require.NoError(t, b.Bind("add", func(a, b float64) float64 { return a + b }))
	b.OnMessage(forwardCall("10", "add", "[1,1]"))
	waitForEval(t, host, `onReply("10", 0, "2", `)
}

func TestShutdownCancelsOutboundCalls(t *testing.T) {
	b, _ := newTestBridge(t)

	rep, err := b.Call("multiply", 2, 2)
	require.NoError(t, err)

	b.Shutdown()

	// Settled by the time Shutdown returns.
	select {
	case <-rep.Done():
	default:
		t.Fatal("reply not settled after shutdown")
	}
	_, _, err = rep.Await(context.Background())
	assert.True(t, errors.Is(err, werr.ErrCanceled))
}

func TestShutdownDrainsInboundCalls(t *testing.T) {
	b, host := newTestBridge(t)
	require.NoError(t, b.Bind("block", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	b.OnMessage(forwardCall("11", "block", "[]"))
	require.Eventually(t, func() bool { return b.PendingCalls() == 1 },
		2*time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		b.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not drain the blocked handler")
	}

	// The page-side promise was settled with a terminating rejection.
	js := waitForEval(t, host, `onReply("11"`)
	assert.Contains(t, js, `onReply("11", 1, `)
	assert.Contains(t, js, "terminating")
}

func TestOperationsAfterShutdown(t *testing.T) {
	b, _ := newTestBridge(t)
	b.Shutdown()

	_, err := b.Call("multiply", 1, 2)
	assert.True(t, errors.Is(err, werr.ErrCanceled))

	assert.True(t, errors.Is(b.Bind("add", func() {}), werr.ErrCanceled))
	assert.True(t, errors.Is(b.Unbind("add"), werr.ErrCanceled))
	assert.True(t, errors.Is(b.Eval("1+1"), werr.ErrCanceled))
}

func TestInboundAfterShutdownIsDropped(t *testing.T) {
	b, host := newTestBridge(t)
	b.Shutdown()

	// The loop is gone; the message must be dropped, not wedge anything.
	b.OnMessage(forwardCall("13", "anything", "[]"))

	time.Sleep(50 * time.Millisecond)
	for _, js := range host.snapshot() {
		assert.NotContains(t, js, `onReply("13"`)
	}
	assert.Equal(t, 0, b.PendingCalls())
}

// gatedHost wedges the loop inside a host evaluation until the gate opens.
type gatedHost struct {
	fakeHost
	enterOnce sync.Once
	entered   chan struct{}
	gate      chan struct{}
}

func (g *gatedHost) Eval(js string) error {
	g.enterOnce.Do(func() { close(g.entered) })
	<-g.gate
	return g.fakeHost.Eval(js)
}

func TestShutdownUnderContention(t *testing.T) {
	host := &gatedHost{entered: make(chan struct{}), gate: make(chan struct{})}
	loop := dispatch.New(1)
	b := New(Config{
		Host:    host,
		Loop:    loop,
		Scripts: script.NewManager(host),
		Nonce:   testNonce,
		Logger:  logging.NewNop(),
	})

	// Park the loop inside a host evaluation, then fill the queue.
	require.NoError(t, b.Eval("wedge"))
	<-host.entered
	b.OnMessage(forwardCall("q1", "ghost", "[]"))

	// Callers blocked on the full queue while teardown wants the lock.
	type outcome struct {
		rep *Reply
		err error
	}
	outcomes := make(chan outcome, 3)
	for i := 0; i < 3; i++ {
		go func() {
			rep, err := b.Call("multiply", 2, 3)
			outcomes <- outcome{rep: rep, err: err}
		}()
	}
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		b.Shutdown()
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	close(host.gate)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown did not complete with callers contending for the queue")
	}

	// Every caller observes a settled outcome: a synchronous failure or a
	// future the drain rejected.
	for i := 0; i < 3; i++ {
		o := <-outcomes
		if o.err != nil {
			assert.True(t, errors.Is(o.err, werr.ErrCanceled), "got %v", o.err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, _, err := o.rep.Await(ctx)
		cancel()
		assert.True(t, errors.Is(err, werr.ErrCanceled), "got %v", err)
	}
}

func TestShutdownIdempotentAndConcurrent(t *testing.T) {
	b, _ := newTestBridge(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Shutdown()
		}()
	}
	wg.Wait()
}

func TestPendingCalls(t *testing.T) {
	b, host := newTestBridge(t)
	assert.Equal(t, 0, b.PendingCalls())

	rep, err := b.Call("multiply", 1, 1)
	require.NoError(t, err)
	waitForEval(t, host, "reverseCall")
	assert.Equal(t, 1, b.PendingCalls())

	b.OnMessage(reverseReply(rep.ID(), "multiply", false, "1"))
	_, _, err = rep.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, b.PendingCalls())
}

func TestConcurrentTraffic(t *testing.T) {
	b, host := newTestBridge(t)
	require.NoError(t, b.Bind("add", func(a, b float64) float64 { return a + b }))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.OnMessage(forwardCall(fmt.Sprintf("c%d", i), "add", fmt.Sprintf("[%d,1]", i)))
		}()
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		js := waitForEval(t, host, fmt.Sprintf(`onReply("c%d"`, i))
		assert.Contains(t, js, fmt.Sprintf(`, 0, "%d", `, i+1))
	}
}
