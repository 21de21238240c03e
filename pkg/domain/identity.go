// Package domain provides the shared building blocks for igbot.
// All bounded contexts (user, chat, message, collector) share these types.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Entity identity
// ---------------------------------------------------------------------------

// EntityID is a typed identifier. Instagram-side identifiers (thread ids,
// item ids, user pks) are carried verbatim as strings for portability.
type EntityID string

// NewID generates a cryptographically random 16-byte hex identifier for
// objects created locally (collectors, scheduler jobs, ...).
func NewID() EntityID {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("domain: failed to generate ID: %v", err))
	}
	return EntityID(hex.EncodeToString(b))
}

// String implements fmt.Stringer.
func (id EntityID) String() string { return string(id) }

// IsZero returns true if the ID is empty.
func (id EntityID) IsZero() bool { return id == "" }

// ---------------------------------------------------------------------------
// Timestamp value object
// ---------------------------------------------------------------------------

// Timestamp wraps time.Time with JSON-friendly serialization and domain semantics.
type Timestamp struct {
	time.Time
}

// Now returns the current UTC timestamp.
func Now() Timestamp { return Timestamp{time.Now().UTC()} }

// ZeroTime returns the zero-value timestamp.
func ZeroTime() Timestamp { return Timestamp{} }

// TimestampFrom wraps an existing time.Time.
func TimestampFrom(t time.Time) Timestamp { return Timestamp{t.UTC()} }

// TimestampFromUnixMicro converts an Instagram microsecond timestamp.
// The private API reports direct-item timestamps in microseconds since epoch.
func TimestampFromUnixMicro(us int64) Timestamp {
	return Timestamp{time.UnixMicro(us).UTC()}
}
