package dispatcher

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// ShortHash returns a short, log-safe stand-in for a user identity.
// The scheduler's log lines and the audit log use it instead of the raw
// X-User-ID value; the HTTP layer's log lines and the dashboard's user
// column (truncated to 8 bytes) still show the raw identity. The
// dashboard also uses it to correlate a live queue's user identity with
// that user's rows in the history audit log.
func ShortHash(user string) string {
	sum := blake2b.Sum256([]byte(user))
	return hex.EncodeToString(sum[:6])
}
