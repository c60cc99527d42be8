// Package id provides centralized ID generation for the widget engine.
//
// IDs are prefixed ULIDs: lexicographically sortable, unique at dispatch
// time, and readable in logs (req_*, sess_*, item_*, user_*). Separate
// wrapper types prevent a request id from being handed where a session
// id is expected.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies one dispatch attempt. Never reused.
type RequestID string

// SessionID groups requests issued by the same widget session.
type SessionID string

// ItemID identifies an output history item.
type ItemID string

// UserID identifies the requesting user.
type UserID string

const (
	RequestPrefix = "req"
	SessionPrefix = "sess"
	ItemPrefix    = "item"
	UserPrefix    = "user"
)

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator with secure entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy
// source, useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string.
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewRequestID generates a new request ID.
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSessionID generates a new session ID.
func NewSessionID() SessionID {
	return SessionID(Default().GenerateWithPrefix(SessionPrefix))
}

// NewItemID generates a new history item ID.
func NewItemID() ItemID {
	return ItemID(Default().GenerateWithPrefix(ItemPrefix))
}

// NewUserID generates a new user ID.
func NewUserID() UserID {
	return UserID(Default().GenerateWithPrefix(UserPrefix))
}

func (id RequestID) String() string { return string(id) }
func (id SessionID) String() string { return string(id) }
func (id ItemID) String() string    { return string(id) }
func (id UserID) String() string    { return string(id) }

// IsValid checks if an ID string is a valid ULID.
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Timestamp extracts the creation time from a raw ULID string.
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
