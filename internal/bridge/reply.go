package bridge

import (
	"context"
	"sync"
)

// Reply is the native-side future for an outbound call. It settles exactly
// once: on a well-formed reverse reply, or with a Canceled error when the
// window is torn down first.
type Reply struct {
	id   string
	done chan struct{}
	once sync.Once

	result    string
	hasResult bool
	err       error
}

func newReply(id string) *Reply {
	return &Reply{id: id, done: make(chan struct{})}
}

func (r *Reply) settle(result string, hasResult bool, err error) {
	r.once.Do(func() {
		r.result = result
		r.hasResult = hasResult
		r.err = err
		close(r.done)
	})
}

// ID returns the call id carried by the reverse-call message.
func (r *Reply) ID() string { return r.id }

// Done is closed once the reply has settled.
func (r *Reply) Done() <-chan struct{} { return r.done }

// Await blocks until settlement or ctx expiry. On success it returns the
// raw JSON result; hasResult is false for void results.
func (r *Reply) Await(ctx context.Context) (result string, hasResult bool, err error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-r.done:
		return r.result, r.hasResult, r.err
	}
}
