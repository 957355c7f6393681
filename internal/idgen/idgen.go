// Package idgen generates session identifiers for telemetry connections.
// Every successful dial gets a fresh id so log lines and relayed events from
// one connection can be told apart from the next.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// SessionPrefix is prepended to every session id.
const SessionPrefix = "sess-"

// alphabet avoids look-alike characters so ids survive being read aloud.
const alphabet = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

// Length is the number of random characters after the prefix.
const Length = 12

// Session returns a new session id.
func Session() (string, error) {
	return WithPrefix(SessionPrefix)
}

// MustSession is Session for callers that cannot proceed without an id.
// nanoid only fails when the system random source does.
func MustSession() string {
	id, err := Session()
	if err != nil {
		panic(err)
	}
	return id
}

// WithPrefix returns a new id with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
