package pipeline

import (
	"regexp"
	"strings"
	"time"
)

// bannedPhrases are openers and filler the crafter model falls into.
// Matching is case-sensitive on purpose: "hello" mid-sentence is fine,
// the canned "Hello!" opener is not.
var bannedPhrases = []string{
	"Hey there!",
	"Hi!",
	"Hello!",
	"Stay safe",
	"Be careful",
	"Be mindful",
}

// firstBannedPhrase returns the first banned phrase found in text,
// or "".
func firstBannedPhrase(text string) string {
	for _, p := range bannedPhrases {
		if strings.Contains(text, p) {
			return p
		}
	}
	return ""
}

// sanitizeRemove deletes every occurrence of phrase and tidies the
// spacing left behind.
func sanitizeRemove(text, phrase string) string {
	if !strings.Contains(text, phrase) {
		return text
	}
	text = strings.ReplaceAll(text, phrase, "")
	text = strings.ReplaceAll(text, "  ", " ")
	return strings.TrimSpace(text)
}

var (
	citationMarker = regexp.MustCompile(`\s*\[\d+\]`)
	referenceBlock = regexp.MustCompile(`(?mi)^(references|sources|citations):\s*$[\s\S]*`)
	handlePattern  = regexp.MustCompile(`@\w+`)
	yearPattern    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// stripCitations removes web-citation artifacts: any trailing
// references block first, then the inline [n] markers.
func stripCitations(text string) string {
	text = referenceBlock.ReplaceAllString(text, "")
	if strings.Contains(text, "[") {
		text = citationMarker.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// scrubHandles removes @-mentions the model invented. Handles that
// appear in the source mention are kept: quoting the asker back is
// legitimate, pinging third parties is not.
func scrubHandles(text, sourceText string) string {
	if !strings.Contains(text, "@") {
		return text
	}
	out := handlePattern.ReplaceAllStringFunc(text, func(h string) string {
		if strings.Contains(sourceText, h) {
			return h
		}
		return ""
	})
	out = strings.ReplaceAll(out, "  ", " ")
	return strings.TrimSpace(out)
}

// truncateRunes hard-cuts text to at most limit runes, preferring the
// last word boundary so the cut does not land mid-word. Last-resort
// enforcement when the model ignores two shorten attempts.
func truncateRunes(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	cut := string(r[:limit])
	if i := strings.LastIndexAny(cut, " \n\t"); i > limit/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

// filterStaleContext drops context lines that anchor themselves to a
// clearly past year. Web search results sometimes surface old articles
// whose dates then leak into replies as if current.
func filterStaleContext(text string, now time.Time) string {
	cutoff := now.Year() - 1
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		stale := false
		for _, m := range yearPattern.FindAllString(line, -1) {
			var y int
			for _, c := range m {
				y = y*10 + int(c-'0')
			}
			if y < cutoff {
				stale = true
				break
			}
		}
		if !stale {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
