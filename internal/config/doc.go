// Package config provides 12-factor configuration for webview hosts.
//
// Configuration is loaded from WEBVIEW_-prefixed environment variables with
// sensible defaults, so embedding applications work with zero setup.
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Serving on %s\n", cfg.Serve.Addr)
//
// Environment Variables:
//   - WEBVIEW_ADDR, WEBVIEW_TITLE
//   - WEBVIEW_LOG_LEVEL, WEBVIEW_LOG_DEV
//   - WEBVIEW_QUEUE_SIZE
package config
