package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBootstrap(t *testing.T) {
	js := Bootstrap("window.__host__.post", "abc123")

	assert.Contains(t, js, `var NONCE = "abc123";`)
	assert.Contains(t, js, "(window.__host__.post)(message)")
	assert.Contains(t, js, "window.__webview__ = new Webview()")

	// Every page-facing entry point must exist.
	for _, fn := range []string{"post", "call", "onReply", "onBind", "onUnbind", "reverseCall"} {
		assert.Contains(t, js, "Webview_.prototype."+fn+" =", "missing %s", fn)
	}
}

func TestBootstrapQuotesNonce(t *testing.T) {
	js := Bootstrap("post", `"</script>`)
	assert.NotContains(t, js, "</script>")
}

func TestBindScript(t *testing.T) {
	js := BindScript([]string{"add", "mul"})
	assert.Contains(t, js, `var methods = ["add","mul"];`)
	assert.Contains(t, js, "window.__webview__.onBind(name)")

	empty := BindScript(nil)
	assert.Contains(t, empty, "var methods = [];")
}

func TestBindScriptDeterministic(t *testing.T) {
	names := []string{"a", "b", "c"}
	assert.Equal(t, BindScript(names), BindScript(names))
	assert.False(t, strings.Contains(BindScript([]string{"a"}), `"b"`))
}
