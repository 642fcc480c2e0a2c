package webview

import (
	"context"

	"github.com/bytedance/sonic"

	"github.com/alx-home/webview/internal/bridge"
	"github.com/alx-home/webview/internal/werr"
)

// Promise is the typed future returned by Call. It settles exactly once;
// Await may be called any number of times and always reports the same
// outcome.
type Promise[T any] struct {
	reply *bridge.Reply
}

// Done is closed once the underlying reply has settled. The typed result is
// still obtained through Await.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.reply.Done()
}

// Await blocks until the script side answers, the window shuts down
// (Canceled error), or ctx expires. A void or absent result yields the zero
// value of T.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	var value T

	raw, hasResult, err := p.reply.Await(ctx)
	if err != nil {
		return value, err
	}
	if !hasResult || raw == "" {
		return value, nil
	}
	if err := sonic.UnmarshalString(raw, &value); err != nil {
		return value, werr.Wrap(werr.CodeUnspecified, err,
			"script result does not decode into %T", value)
	}
	return value, nil
}
