package service

import "fmt"

// Word and character deltas below these thresholds read as cosmetic edits.
// The values are product policy carried over from existing history text, not
// technical constraints.
const (
	minorEditWordThreshold = 10
	minorEditCharThreshold = 50
)

// ClassifyChange produces the human-readable summary stored on a snapshot.
// Pure function; the summary feeds version history display only, never
// correctness decisions.
func ClassifyChange(oldContent, newContent string) string {
	wordDelta := countWords(newContent) - countWords(oldContent)
	charDelta := len(newContent) - len(oldContent)

	absWords := wordDelta
	if absWords < 0 {
		absWords = -absWords
	}
	absChars := charDelta
	if absChars < 0 {
		absChars = -absChars
	}

	switch {
	case absWords < minorEditWordThreshold && absChars < minorEditCharThreshold:
		return "Minor text edits"
	case wordDelta > 0:
		return fmt.Sprintf("Added %d words, expanded content", wordDelta)
	case wordDelta < 0:
		return fmt.Sprintf("Removed %d words, condensed content", -wordDelta)
	default:
		return "Content updated"
	}
}
