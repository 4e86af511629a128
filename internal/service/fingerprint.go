package service

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns a deterministic hash of the normalised (trimmed)
// content. It exists purely to answer "did anything change" between saves;
// it is not a cryptographic primitive and must never be used for integrity
// proofs. A hash collision between two different bodies would make an actual
// edit look like a no-op; with a 64-bit digest over human-written proposal
// text this is an accepted limitation.
func Fingerprint(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.TrimSpace(content)))
}

func countWords(content string) int {
	return len(strings.Fields(content))
}
