package gojahost_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alx-home/webview"
	gojahost "github.com/alx-home/webview/host/goja"
)

func newWindow(t *testing.T) (*webview.Window, *gojahost.Host) {
	t.Helper()
	host := gojahost.New()
	w, err := webview.New(host, webview.WithRegistry(webview.NewWindowRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, host
}

func awaitValue[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for page activity")
		panic("unreachable")
	}
}

func TestPageCallsBoundFunction(t *testing.T) {
	w, _ := newWindow(t)

	results := make(chan float64, 1)
	require.NoError(t, w.Bind("add", func(a, b float64) float64 { return a + b }))
	require.NoError(t, w.Bind("report", func(v float64) { results <- v }))

	require.NoError(t, w.Navigate(""))
	require.NoError(t, w.Eval(`add(2, 3).then(function(r) { report(r); });`))

	assert.Equal(t, 5.0, awaitValue(t, results))
}

func TestPageSeesRejection(t *testing.T) {
	w, _ := newWindow(t)

	messages := make(chan string, 1)
	require.NoError(t, w.Bind("fail", func() error { return errors.New("boom") }))
	require.NoError(t, w.Bind("report", func(msg string) { messages <- msg }))

	require.NoError(t, w.Navigate(""))
	require.NoError(t, w.Eval(`fail().catch(function(e) { report('caught: ' + e); });`))

	assert.Contains(t, awaitValue(t, messages), "boom")
}

func TestUnknownFunctionRejects(t *testing.T) {
	w, _ := newWindow(t)

	messages := make(chan string, 1)
	require.NoError(t, w.Bind("report", func(msg string) { messages <- msg }))

	require.NoError(t, w.Navigate(""))
	require.NoError(t, w.Eval(`
		window.__webview__.call('ghost').then(
			function() { report('resolved'); },
			function(e) { report('rejected: ' + e); });
	`))

	assert.Contains(t, awaitValue(t, messages), "rejected")
}

func TestNativeCallsPageFunction(t *testing.T) {
	w, _ := newWindow(t)

	require.NoError(t, w.Init(`window.multiply = function(a, b) { return a * b; };`))
	require.NoError(t, w.Navigate(""))

	promise, err := webview.Call[float64](w, "multiply", 6, 7)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := promise.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.0, result)
}

func TestNativeCallPageThrows(t *testing.T) {
	w, _ := newWindow(t)

	require.NoError(t, w.Init(`window.angry = function() { throw new Error('go away'); };`))
	require.NoError(t, w.Navigate(""))

	promise, err := webview.Call[string](w, "angry")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = promise.Await(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, webview.ErrRejected))
	assert.Contains(t, err.Error(), "go away")
}

func TestNativeCallUndefinedFunction(t *testing.T) {
	w, _ := newWindow(t)
	require.NoError(t, w.Navigate(""))

	promise, err := webview.Call[string](w, "nothere")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = promise.Await(ctx)
	assert.True(t, errors.Is(err, webview.ErrRejected))
}

func TestBindingVisibleAfterNavigate(t *testing.T) {
	w, _ := newWindow(t)

	kinds := make(chan string, 1)
	require.NoError(t, w.Bind("probe", func() {}))
	require.NoError(t, w.Bind("report", func(kind string) { kinds <- kind }))

	require.NoError(t, w.Navigate(""))
	require.NoError(t, w.Eval(`report(typeof probe);`))
	assert.Equal(t, "function", awaitValue(t, kinds))

	// A fresh page load re-registers bindings from the injection scripts.
	require.NoError(t, w.Navigate("second"))
	require.NoError(t, w.Eval(`report(typeof probe);`))
	assert.Equal(t, "function", awaitValue(t, kinds))
}

func TestUnbindNotifiesLoadedPage(t *testing.T) {
	w, _ := newWindow(t)

	kinds := make(chan string, 1)
	require.NoError(t, w.Bind("probe", func() {}))
	require.NoError(t, w.Bind("report", func(kind string) { kinds <- kind }))
	require.NoError(t, w.Navigate(""))

	require.NoError(t, w.Unbind("probe"))
	require.NoError(t, w.Eval(`report(typeof probe);`))
	assert.Equal(t, "undefined", awaitValue(t, kinds))
}

func TestBindNotifiesLoadedPage(t *testing.T) {
	w, _ := newWindow(t)

	results := make(chan float64, 1)
	require.NoError(t, w.Bind("report", func(v float64) { results <- v }))
	require.NoError(t, w.Navigate(""))

	// Bound after the page loaded; the notice installs it live.
	require.NoError(t, w.Bind("triple", func(n float64) float64 { return n * 3 }))
	require.NoError(t, w.Eval(`triple(7).then(function(r) { report(r); });`))
	assert.Equal(t, 21.0, awaitValue(t, results))
}

func TestStructuredArguments(t *testing.T) {
	type box struct {
		Label string `json:"label"`
		Count int    `json:"count"`
	}

	w, _ := newWindow(t)
	labels := make(chan string, 1)
	require.NoError(t, w.Bind("store", func(b box) string { return b.Label }))
	require.NoError(t, w.Bind("report", func(s string) { labels <- s }))

	require.NoError(t, w.Navigate(""))
	require.NoError(t, w.Eval(`
		store({label: 'crate', count: 3}).then(function(r) { report(r); });
	`))
	assert.Equal(t, "crate", awaitValue(t, labels))
}

func TestEvalBeforeNavigateIsDropped(t *testing.T) {
	w, host := newWindow(t)

	require.NoError(t, w.Eval(`this should not even parse`))
	require.NoError(t, w.Navigate("page"))
	assert.Equal(t, "page", host.URL())
}

func TestHostCloseIsIdempotent(t *testing.T) {
	host := gojahost.New()
	require.NoError(t, host.Close())
	require.NoError(t, host.Close())

	_, err := host.AddScript("1+1")
	assert.True(t, errors.Is(err, webview.ErrInvalidState))
}
