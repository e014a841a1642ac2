// Package roomid generates memorable room identifiers such as
// "misty-harbor-lantern".
package roomid

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Generate returns a random adjective-scene-thing identifier.
func Generate() string {
	return strings.Join([]string{pick(adjectives), pick(scenes), pick(things)}, "-")
}

func pick(words []string) string {
	return words[randomIndex(len(words))]
}

// randomIndex returns a cryptographically secure index below n.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(v.Int64())
}
