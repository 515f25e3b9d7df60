package service

import (
	"github.com/oklog/ulid/v2"
)

const cariCodePrefix = "CR"

// CodeGenerator returns a candidate cari code. Uniqueness is enforced by the
// (org_id, cari_code) index, so collisions are retried by the caller.
type CodeGenerator func() string

// ULIDCodeGenerator takes the random tail of a ULID, which is Crockford
// base32 and safe to read aloud.
func ULIDCodeGenerator() string {
	id := ulid.Make().String()
	return cariCodePrefix + id[len(id)-8:]
}
