package transform

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
)

const nifLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

var (
	trailingNote = regexp.MustCompile(`\s*\(.*?\)\s*$`)
	nifPattern   = regexp.MustCompile(`(?i)\b\d{7,8}[A-Z]\b`)
)

// CleanName trims the contact name and drops a trailing parenthetical such as "(RENTA)".
func CleanName(name string) string {
	return trailingNote.ReplaceAllString(strings.TrimSpace(name), "")
}

// DisplayName is the first two words of name.
func DisplayName(name string) string {
	words := strings.Fields(name)
	if len(words) > 2 {
		words = words[:2]
	}
	return strings.Join(words, " ")
}

// PlaceholderNIF returns eight random digits followed by their control letter.
// It only stands in for a missing tax id and is never a real one.
func PlaceholderNIF() string {
	n := rand.IntN(100_000_000)
	return fmt.Sprintf("%08d%c", n, nifLetters[n%23])
}

// ExtractNIF returns the first personal tax id found in s, or "" when none.
func ExtractNIF(s string) string {
	return nifPattern.FindString(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
