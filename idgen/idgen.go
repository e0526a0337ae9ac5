// Package idgen provides the identifier generators used for publications,
// availability events and HTTP request IDs.
//
//	pub_k3x9q0m2ab    publications (short, stable for one corpus)
//	evt_<uuid v7>     document events (time-sortable in SQLite)
//	req_<12 chars>    HTTP requests and MCP calls
package idgen

import (
	"crypto/rand"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NanoID returns a Generator of random base-36 IDs of the given length.
// Bytes of 252 and above are redrawn so every symbol is equally likely.
func NanoID(length int) Generator {
	const limit = 256 - 256%len(base36)
	return func() string {
		out := make([]byte, 0, length)
		buf := make([]byte, length+length/4+1)
		for len(out) < length {
			if _, err := rand.Read(buf); err != nil {
				panic("idgen: crypto/rand failed: " + err.Error())
			}
			for _, b := range buf {
				if int(b) >= limit {
					continue
				}
				out = append(out, base36[int(b)%len(base36)])
				if len(out) == length {
					break
				}
			}
		}
		return string(out)
	}
}

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs, which sort by
// creation time.
func UUIDv7() Generator {
	return func() string { return uuid.Must(uuid.NewV7()).String() }
}

// Prefixed prepends prefix to every ID produced by gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string { return prefix + gen() }
}

// Default backs New.
var Default = UUIDv7()

// New returns an ID from Default.
func New() string { return Default() }
