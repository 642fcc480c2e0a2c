package webview

// ScriptHandle is an opaque engine-assigned token identifying one injected
// script. Only the issuing host can interpret it.
type ScriptHandle interface{}

// ScriptHost abstracts the browser or script engine backing a window. It
// isolates the bridge from all platform binding detail; any concrete engine
// backend implements it.
//
// Eval evaluates a script in the current page. AddScript injects a script to
// run at the start of every subsequent page load and returns its handle.
// SameScript applies the engine's own equality notion for "is this the same
// injected script". OnMessage registers the receiver for messages posted by
// the page; hosts must deliver each message from at most one goroutine at a
// time and must not block on the callback's completion beyond its return.
type ScriptHost interface {
	Eval(js string) error
	AddScript(source string) (ScriptHandle, error)
	RemoveScript(handle ScriptHandle) error
	SameScript(a, b ScriptHandle) bool
	OnMessage(fn func(msg string))
	Navigate(url string) error
	Close() error
}
