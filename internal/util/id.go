package util

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const (
	sessionCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	SessionCodeLength = 6
)

// GenerateSessionCode returns a shareable room code drawn uniformly from
// [A-Z0-9]. Codes are not unique by construction; callers must check for
// collisions against live sessions.
func GenerateSessionCode() string {
	max := big.NewInt(int64(len(sessionCodeChars)))
	code := make([]byte, SessionCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		code[i] = sessionCodeChars[n.Int64()]
	}
	return string(code)
}

func GenerateSessionID() string {
	return newID("sess")
}

func GenerateParticipantID() string {
	return newID("part")
}

func GenerateStoryID() string {
	return newID("story")
}

// newID builds a time-ordered id. UUIDv7 carries a millisecond timestamp and a
// per-process monotonic sequence, so ids never repeat within one process.
func newID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "_" + id.String()
}
