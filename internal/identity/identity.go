// Package identity generates the opaque session tokens that correlate every
// chat turn and feedback rating of one client session.
package identity

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SessionPrefix starts every generated session id.
const SessionPrefix = "sess_"

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// randomUUID is swapped in tests to exercise the fallback path.
var randomUUID = uuid.NewRandom

// Generate returns a new session id. It prefers a UUIDv4 drawn from the
// system's cryptographic source and falls back to a random-plus-timestamp
// token when that source is unavailable.
func Generate() string {
	id, err := randomUUID()
	if err != nil {
		return fallbackID(time.Now())
	}
	return SessionPrefix + id.String()
}

func fallbackID(now time.Time) string {
	return SessionPrefix +
		strconv.FormatUint(rand.Uint64(), 36) + "_" +
		strconv.FormatInt(now.UnixMilli(), 10)
}

// Valid reports whether id looks like a well-formed session token.
func Valid(id string) bool {
	return sessionIDPattern.MatchString(id)
}
