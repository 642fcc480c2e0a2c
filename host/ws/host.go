// Package wshost provides a ScriptHost that drives a real browser over a
// WebSocket. The host serves a page with every injected script inlined and
// a small client runtime; evaluations and navigations travel down the
// socket, page messages travel up. One page connection is active at a time.
package wshost

import (
	"html/template"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/alx-home/webview"
	"github.com/alx-home/webview/internal/logging"
	"github.com/alx-home/webview/internal/werr"
)

// envelope is the frame exchanged with the client runtime.
type envelope struct {
	Type string `json:"type"` // "eval", "navigate", "message"
	Data string `json:"data,omitempty"`
}

type script struct {
	source string
}

// Option configures a Host.
type Option func(*Host)

// WithLogger routes host logging through l.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.log = &logging.Logger{Logger: l} }
}

// WithTitle sets the served page title.
func WithTitle(title string) Option {
	return func(h *Host) { h.title = title }
}

// Host serves the hosted page and relays bridge traffic over one WebSocket.
type Host struct {
	log      *logging.Logger
	title    string
	upgrader websocket.Upgrader

	mu        sync.Mutex
	scripts   []*script
	body      template.HTML
	conn      *websocket.Conn
	onMessage func(string)
	closed    bool
}

// New creates a host. Register its routes on a gin engine with Routes, then
// open the served page in a browser.
func New(opts ...Option) *Host {
	h := &Host{
		log:   logging.NewNop(),
		title: "webview",
		upgrader: websocket.Upgrader{
			// The page is served by this same process.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the page and socket endpoints.
func (h *Host) Routes(r *gin.Engine) {
	r.GET("/", h.servePage)
	r.GET("/bridge", h.serveSocket)
}

// SetHTML sets the body markup of the served page. Takes effect on the next
// page load.
func (h *Host) SetHTML(body string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.body = template.HTML(body)
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script>
(function() {
   'use strict';
   var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
   var sock = new WebSocket(proto + location.host + '/bridge');
   var backlog = [];

   window.__host__ = {
      post: function(message) {
         if (sock.readyState === WebSocket.OPEN) {
            sock.send(JSON.stringify({type: 'message', data: message}));
         } else {
            backlog.push(message);
         }
      }
   };

   sock.onopen = function() {
      backlog.splice(0).forEach(window.__host__.post);
   };

   sock.onmessage = function(event) {
      var frame = JSON.parse(event.data);
      if (frame.type === 'eval') {
         try {
            (0, eval)(frame.data);
         } catch (e) {
            console.error('bridge eval failed', e);
         }
      } else if (frame.type === 'navigate') {
         location.href = frame.data;
      }
   };
})();
</script>
{{range .Scripts}}<script>{{.}}</script>
{{end}}
</head>
<body>
{{.Body}}
</body>
</html>
`))

func (h *Host) servePage(c *gin.Context) {
	h.mu.Lock()
	sources := make([]template.JS, len(h.scripts))
	for i, s := range h.scripts {
		sources[i] = template.JS(s.source)
	}
	body := h.body
	title := h.title
	h.mu.Unlock()

	c.Header("Content-Type", "text/html; charset=utf-8")
	err := pageTemplate.Execute(c.Writer, gin.H{
		"Title":   title,
		"Scripts": sources,
		"Body":    body,
	})
	if err != nil {
		h.log.Error("rendering page failed", zap.Error(err))
	}
}

func (h *Host) serveSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	if h.conn != nil {
		// A reloaded page supersedes the previous connection.
		_ = h.conn.Close()
	}
	h.conn = conn
	h.mu.Unlock()

	for {
		var frame envelope
		if err := conn.ReadJSON(&frame); err != nil {
			h.log.Debug("websocket read ended", zap.Error(err))
			break
		}
		if frame.Type != "message" {
			continue
		}
		h.mu.Lock()
		fn := h.onMessage
		h.mu.Unlock()
		if fn != nil {
			fn(frame.Data)
		}
	}

	h.mu.Lock()
	if h.conn == conn {
		h.conn = nil
	}
	h.mu.Unlock()
	_ = conn.Close()
}

// send writes one frame to the connected page, if any.
func (h *Host) send(frame envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return werr.New(werr.CodeInvalidState, "host is closed")
	}
	if h.conn == nil {
		h.log.Debug("no page connected, dropping frame", zap.String("type", frame.Type))
		return nil
	}
	return h.conn.WriteJSON(frame)
}

// Eval evaluates js in the connected page. With no page connected the
// snippet is dropped with a debug log.
func (h *Host) Eval(js string) error {
	return h.send(envelope{Type: "eval", Data: js})
}

// Navigate points the connected page at url.
func (h *Host) Navigate(url string) error {
	return h.send(envelope{Type: "navigate", Data: url})
}

// AddScript injects a script into every subsequently served page.
func (h *Host) AddScript(source string) (webview.ScriptHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, werr.New(werr.CodeInvalidState, "host is closed")
	}
	s := &script{source: source}
	h.scripts = append(h.scripts, s)
	return s, nil
}

// RemoveScript withdraws an injected script.
func (h *Host) RemoveScript(handle webview.ScriptHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
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
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = fn
}

// Close drops the page connection.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.conn != nil {
		err := h.conn.Close()
		h.conn = nil
		return err
	}
	return nil
}
