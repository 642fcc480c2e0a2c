// Package id provides call and window identifier generation.
//
// Call ids must be unique for the lifetime of one window instance; ULIDs give
// that plus lexicographic sortability, which keeps pending-table dumps in
// issue order when debugging. The session nonce is generated separately from
// a cryptographically secure source because it guards message authenticity,
// not ordering.
package id

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// CallID correlates one in-flight bridge call.
type CallID string

// WindowID identifies a window instance.
type WindowID string

const (
	callPrefix   = "call"
	windowPrefix = "win"
)

func (id CallID) String() string   { return string(id) }
func (id WindowID) String() string { return string(id) }

// Generator produces prefixed ULIDs.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

// NewGenerator creates a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source,
// useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

func (g *Generator) generate() string {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// Call returns a fresh call id.
func (g *Generator) Call() CallID {
	return CallID(callPrefix + "_" + g.generate())
}

// Window returns a fresh window id.
func (g *Generator) Window() WindowID {
	return WindowID(windowPrefix + "_" + g.generate())
}

// Nonce returns an opaque per-session token. Two random UUIDs are
// concatenated so the token cannot be guessed by another page context.
func Nonce() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
