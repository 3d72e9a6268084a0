package usecase

import "regexp"

var verseRef = regexp.MustCompile(`\b(\d+):(\d+)\b`)

// Speakable rewrites tokens that read fine but speak badly. Chapter:verse
// references like "3:16" become "chapter 3, verse 16" so the synthesizer
// does not read them as times or ratios.
func Speakable(text string) string {
	return verseRef.ReplaceAllString(text, "chapter $1, verse $2")
}
