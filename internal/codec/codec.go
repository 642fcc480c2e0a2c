// Package codec parses and serializes the wire messages exchanged with the
// script environment. Functions here are pure; dropping or logging malformed
// input is the caller's concern.
package codec

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/alx-home/webview/internal/werr"
)

// Reply status values understood by the page-side onReply routine.
const (
	StatusOK    = 0
	StatusError = 1
)

// ForwardCall is a script-initiated invocation of a native binding.
type ForwardCall struct {
	ID     string
	Method string
	Params string // string-encoded JSON array
}

// ReverseReply is the script-side answer to a native-initiated call.
type ReverseReply struct {
	ID        string
	Method    string
	Error     bool
	Result    string // string-encoded JSON, meaningful when HasResult
	HasResult bool
}

// Sentinel decode failures. Both mean "drop the message"; they are split so
// nonce rejections can be counted separately from plain garbage.
var (
	ErrNonceMismatch = werr.New(werr.CodeInvalidArgument, "message nonce does not match session nonce")
	ErrMalformed     = werr.New(werr.CodeInvalidArgument, "malformed bridge message")
)

type wireMessage struct {
	Nonce   string  `json:"nonce"`
	Reverse bool    `json:"reverse"`
	ID      string  `json:"id"`
	Method  string  `json:"method"`
	Params  *string `json:"params"`
	Error   bool    `json:"error"`
	Result  *string `json:"result"`
}

// Decode parses a raw message from the script transport and returns either a
// *ForwardCall or a *ReverseReply. The embedded nonce must equal the session
// nonce or the message is rejected.
func Decode(raw, nonce string) (interface{}, error) {
	var msg wireMessage
	if err := sonic.UnmarshalString(raw, &msg); err != nil {
		return nil, werr.Wrap(werr.CodeInvalidArgument, err, "malformed bridge message")
	}
	if msg.Nonce != nonce {
		return nil, ErrNonceMismatch
	}
	if msg.ID == "" {
		return nil, ErrMalformed
	}

	if msg.Reverse {
		reply := &ReverseReply{
			ID:     msg.ID,
			Method: msg.Method,
			Error:  msg.Error,
		}
		if msg.Result != nil {
			reply.Result = *msg.Result
			reply.HasResult = true
		}
		return reply, nil
	}

	if msg.Method == "" || msg.Params == nil {
		return nil, ErrMalformed
	}
	return &ForwardCall{
		ID:     msg.ID,
		Method: msg.Method,
		Params: *msg.Params,
	}, nil
}

// Quote renders s as a JavaScript string literal. The output is also valid
// JSON, so it survives the page's JSON.parse round-trip. U+2028/U+2029 are
// escaped for pre-ES2019 engines, and HTML-significant characters so the
// literal can be inlined inside a <script> element.
func Quote(s string) string {
	out, err := sonic.ConfigStd.MarshalToString(s)
	if err != nil {
		// Marshaling a plain string cannot fail; keep the codec total anyway.
		return `""`
	}
	out = strings.ReplaceAll(out, "\u2028", `\u2028`)
	out = strings.ReplaceAll(out, "\u2029", `\u2029`)
	return out
}

// EncodeReply builds the script snippet that settles the page-side promise
// tied to id. A reply without a result resolves to undefined (void results).
func EncodeReply(id string, status int, resultJSON string, hasResult bool, nonce string) string {
	var b strings.Builder
	b.WriteString("window.__webview__.onReply(")
	b.WriteString(Quote(id))
	b.WriteString(", ")
	if status == StatusOK {
		b.WriteString("0, ")
	} else {
		b.WriteString("1, ")
	}
	if hasResult {
		b.WriteString(Quote(resultJSON))
	} else {
		b.WriteString("undefined")
	}
	b.WriteString(", ")
	b.WriteString(Quote(nonce))
	b.WriteString(")")
	return b.String()
}

// EncodeReverseCall builds the script snippet asking the page to invoke the
// script-global function registered under method and report back.
func EncodeReverseCall(method, id, nonce, argsJSON string) string {
	var b strings.Builder
	b.WriteString("window.__webview__.reverseCall(")
	b.WriteString(Quote(method))
	b.WriteString(", ")
	b.WriteString(Quote(id))
	b.WriteString(", ")
	b.WriteString(Quote(nonce))
	b.WriteString(", ")
	b.WriteString(Quote(argsJSON))
	b.WriteString(")")
	return b.String()
}

// EncodeBindNotice tells an already-loaded page about a new binding. The
// guard keeps the snippet harmless before the bootstrap has run.
func EncodeBindNotice(name, nonce string) string {
	return "if (window.__webview__) { window.__webview__.onBind(" +
		Quote(name) + ", " + Quote(nonce) + ") }"
}

// EncodeUnbindNotice tells an already-loaded page to drop a binding.
func EncodeUnbindNotice(name, nonce string) string {
	return "if (window.__webview__) { window.__webview__.onUnbind(" +
		Quote(name) + ", " + Quote(nonce) + ") }"
}
