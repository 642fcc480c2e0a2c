// Package webview embeds a browser-engine-backed window in a native
// application and bridges calls between Go code and the hosted page.
//
// Native functions are exposed to the page with Bind and invoked from
// script as window-global async functions; script-global functions are
// invoked from Go with Call and settle a typed Promise. Every call is
// correlated by id, tracked while in flight, and guaranteed to settle
// exactly once, including during shutdown when stragglers are rejected with
// a Canceled error before window resources are released.
//
// The engine itself is pluggable through ScriptHost; see the host/goja and
// host/ws subpackages for an in-process JavaScript backend and a
// WebSocket-connected browser backend.
package webview
