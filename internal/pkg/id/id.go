package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs sort by creation time, which keeps
// account IDs and token IDs roughly ordered in logs and tables.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
