// Package sentinel generates unique lock sentinel values.
//
// A sentinel is the value written under a lock key by the holder. Release is
// expiry-based and never inspects the sentinel, so its content is purely
// informational: it identifies which process and acquisition wrote the key,
// which helps when inspecting lock keys in Redis during an incident.
package sentinel

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique sentinel values of the form
// "<instanceID>:<counter>".
//
// The instance ID is a UUIDv7 generated once per Generator, so values are
// unique across processes; the counter makes them unique within one.
type Generator struct {
	instanceID string
	counter    atomic.Uint64
}

// NewGenerator returns a Generator with a fresh instance ID.
func NewGenerator() *Generator {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source does; fall back to V4's
		// must-succeed path rather than propagating an error nobody can act on.
		id = uuid.New()
	}
	return &Generator{instanceID: id.String()}
}

// Next returns the next sentinel value.
func (g *Generator) Next() string {
	return g.instanceID + ":" + strconv.FormatUint(g.counter.Add(1), 10)
}
