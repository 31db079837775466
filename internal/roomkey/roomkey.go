// Package roomkey generates memorable room keys such as
// "curious-otter-physics".
package roomkey

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// maxAttempts bounds the search for an unused key before a numeric suffix is
// appended.
const maxAttempts = 32

// Generate returns a random three word key. inUse may be nil; when set, keys
// it reports as taken are skipped.
func Generate(inUse func(string) bool) string {
	var key string
	for i := 0; i < maxAttempts; i++ {
		key = strings.Join([]string{pick(adjectives), pick(animals), pick(topic())}, "-")
		if inUse == nil || !inUse(key) {
			return key
		}
	}
	return key + "-" + pick(objects)
}

// topic alternates between subjects and objects so keys stay varied.
func topic() []string {
	if randomIndex(2) == 0 {
		return subjects
	}
	return objects
}

func pick(words []string) string {
	return words[randomIndex(len(words))]
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("roomkey: failed to generate random index: " + err.Error())
	}
	return int(n.Int64())
}
