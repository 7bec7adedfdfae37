package session

import (
	"time"

	"golang.org/x/crypto/blake2b"
)

// usedCodes remembers every authorization code exchanged in the session and
// when it was used. Codes are kept as digests only. Callers must hold the
// session lock.
type usedCodes struct {
	entries map[[blake2b.Size256]byte]time.Time
}

func newUsedCodes() *usedCodes {
	return &usedCodes{entries: make(map[[blake2b.Size256]byte]time.Time)}
}

func digest(code string) [blake2b.Size256]byte {
	return blake2b.Sum256([]byte(code))
}

// usedAt returns when code was exchanged, if it was.
func (u *usedCodes) usedAt(code string) (time.Time, bool) {
	at, ok := u.entries[digest(code)]
	return at, ok
}

func (u *usedCodes) add(code string, now time.Time) {
	u.entries[digest(code)] = now
}

func (u *usedCodes) reset() {
	u.entries = make(map[[blake2b.Size256]byte]time.Time)
}

func (u *usedCodes) len() int {
	return len(u.entries)
}
