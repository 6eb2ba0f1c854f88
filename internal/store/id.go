package store

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

// ID is an opaque 24-character lowercase-hex identifier. The first four bytes
// encode the creation time so IDs sort roughly by age.
type ID string

func NewID() ID {
	var b [12]byte
	binary.BigEndian.PutUint32(b[:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:])
	return ID(hex.EncodeToString(b[:]))
}

// ParseID validates a string identifier. Anything that is not exactly 24
// lowercase hex characters is rejected.
func ParseID(s string) (ID, error) {
	if len(s) != 24 {
		return "", fmt.Errorf("id must be 24 hex characters, got %d", len(s))
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("id contains non-hex character %q", c)
		}
	}
	return ID(s), nil
}

func (id ID) String() string { return string(id) }
