package extract

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/replyclaw/internal/twitter"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// collectURLs gathers links from a tweet, preferring the entity
// expansions over the t.co shorteners and falling back to a regex
// scan of the raw text for anything the entities missed. Order is
// first seen; duplicates are dropped.
func collectURLs(t *twitter.Tweet, seen map[string]struct{}, out []string) []string {
	add := func(u string) []string {
		u = strings.TrimRight(u, ".,;:!?)")
		if u == "" {
			return out
		}
		if _, ok := seen[u]; ok {
			return out
		}
		seen[u] = struct{}{}
		return append(out, u)
	}

	covered := make(map[string]struct{})
	if t.Entities != nil {
		for _, ent := range t.Entities.URLs {
			covered[ent.URL] = struct{}{}
			out = add(ent.Best())
		}
	}
	for _, raw := range urlPattern.FindAllString(t.Text, -1) {
		raw = strings.TrimRight(raw, ".,;:!?)")
		if _, ok := covered[raw]; ok {
			continue
		}
		out = add(raw)
	}
	return out
}
