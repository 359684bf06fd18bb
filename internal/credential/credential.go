// Package credential holds secrets such as store passwords and API keys.
//
// A Credential never prints its contents: String, GoString, every fmt verb,
// JSON, text and zap encodings all render a redaction marker. The raw bytes
// are reachable only through Reveal. Wipe zeroes the backing memory; callers
// should defer it once the secret is no longer needed. A finalizer wipes
// credentials that were never explicitly wiped.
package credential

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap/zapcore"
)

// Redacted is what a Credential renders as in every output format.
const Redacted = "[REDACTED]"

// Credential is an owned secret byte string.
type Credential struct {
	mu    sync.Mutex
	buf   []byte
	wiped bool
}

// New copies s into a new Credential.
func New(s string) *Credential {
	return FromBytes([]byte(s))
}

// FromBytes copies b into a new Credential. The caller keeps ownership of b.
func FromBytes(b []byte) *Credential {
	buf := make([]byte, len(b))
	copy(buf, b)
	c := &Credential{buf: buf}
	runtime.SetFinalizer(c, (*Credential).Wipe)
	return c
}

// Len returns the secret length in bytes, or 0 once wiped.
func (c *Credential) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Cap returns the capacity of the backing buffer.
func (c *Credential) Cap() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return cap(c.buf)
}

// IsSet reports whether the credential holds a non-empty secret.
func (c *Credential) IsSet() bool {
	return c.Len() > 0
}

// Wiped reports whether Wipe has run.
func (c *Credential) Wiped() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wiped
}

// Reveal returns a copy of the secret. Use only at the point where the raw
// value must be handed to a client library.
func (c *Credential) Reveal() string {
	if c == nil {
		return ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

// Equal compares two credentials in constant time with respect to their
// contents. Credentials of different length are never equal.
func (c *Credential) Equal(other *Credential) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c == other {
		return true
	}
	a, b := c.snapshot(), other.snapshot()
	defer zero(a)
	defer zero(b)
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Validate rejects secrets containing NUL bytes.
func (c *Credential) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wiped {
		return fmt.Errorf("credential has been wiped")
	}
	if bytes.IndexByte(c.buf, 0) >= 0 {
		return fmt.Errorf("credential contains NUL byte")
	}
	return nil
}

// Wipe overwrites the whole backing buffer with zeros. Safe to call twice.
func (c *Credential) Wipe() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wiped {
		return
	}
	zero(c.buf[:cap(c.buf)])
	c.buf = c.buf[:0]
	c.wiped = true
	runtime.SetFinalizer(c, nil)
}

func (c *Credential) snapshot() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// String implements fmt.Stringer.
func (c *Credential) String() string { return Redacted }

// GoString implements fmt.GoStringer.
func (c *Credential) GoString() string { return "credential.Credential(" + Redacted + ")" }

// Format renders the redaction marker for every verb, including %x and %q.
func (c *Credential) Format(f fmt.State, verb rune) {
	if verb == 'v' && f.Flag('#') {
		_, _ = f.Write([]byte(c.GoString()))
		return
	}
	_, _ = f.Write([]byte(Redacted))
}

// MarshalJSON implements json.Marshaler.
func (c *Credential) MarshalJSON() ([]byte, error) {
	return json.Marshal(Redacted)
}

// MarshalText implements encoding.TextMarshaler.
func (c *Credential) MarshalText() ([]byte, error) {
	return []byte(Redacted), nil
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (c *Credential) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("value", Redacted)
	enc.AddInt("len", c.Len())
	return nil
}
