// Command demo serves a browser-backed webview window with a few example
// bindings. Open the printed URL, then try the buttons or call the bound
// functions from the devtools console.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alx-home/webview"
	wshost "github.com/alx-home/webview/host/ws"
	"github.com/alx-home/webview/internal/config"
	"github.com/alx-home/webview/internal/logging"
)

const demoBody = `
<h1>webview bridge demo</h1>
<p>Open the devtools console and try <code>await add(2, 3)</code> or
<code>await now()</code>.</p>
<button onclick="add(2, 3).then(function(r) { alert('2 + 3 = ' + r); })">add(2, 3)</button>
<button onclick="fail().catch(function(e) { alert('rejected: ' + e); })">fail()</button>
<script>
window.multiply = function(a, b) { return a * b; };
</script>
`

func main() {
	addr := flag.String("addr", "", "listen address (overrides WEBVIEW_ADDR)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *addr != "" {
		cfg.Serve.Addr = *addr
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	host := wshost.New(
		wshost.WithLogger(logger.Logger),
		wshost.WithTitle(cfg.Serve.Title),
	)
	host.SetHTML(demoBody)

	registry := prometheus.NewRegistry()
	window, err := webview.New(host,
		webview.WithLogger(logger.Logger),
		webview.WithMetrics(registry),
		webview.WithQueueSize(cfg.Bridge.QueueSize),
	)
	if err != nil {
		logger.Fatal("Failed to create window", zap.Error(err))
	}

	bindExamples(logger, window)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	host.Routes(router)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	errChan := make(chan error, 1)
	go func() {
		errChan <- router.Run(cfg.Serve.Addr)
	}()
	logger.Info("demo running", zap.String("url", "http://"+cfg.Serve.Addr+"/"))

	// Periodically call into the page to exercise the reverse direction.
	go func() {
		for range time.Tick(10 * time.Second) {
			promise, err := webview.Call[float64](window, "multiply", 6, 7)
			if err != nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if result, err := promise.Await(ctx); err == nil {
				logger.Info("page answered", zap.Float64("result", result))
			}
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutting down")
		if err := window.Close(); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
	case err := <-errChan:
		logger.Fatal("server error", zap.Error(err))
	}
}

func bindExamples(logger *logging.Logger, window *webview.Window) {
	mustBind(logger, window, "add", func(a, b float64) float64 {
		return a + b
	})
	mustBind(logger, window, "now", func() string {
		return time.Now().Format(time.RFC3339)
	})
	mustBind(logger, window, "fail", func() error {
		return fmt.Errorf("this binding always fails")
	})
	mustBind(logger, window, "sleep", func(ctx context.Context, millis int) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(millis) * time.Millisecond):
			return nil
		}
	})
}

func mustBind(logger *logging.Logger, window *webview.Window, name string, fn interface{}) {
	if err := window.Bind(name, fn); err != nil {
		logger.Fatal("bind failed", zap.String("name", name), zap.Error(err))
	}
}
