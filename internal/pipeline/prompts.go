package pipeline

import (
	"fmt"
	"strings"
)

// analystSystem is the persona for the analysis stage. It produces a
// thorough answer with no length pressure; the crafter compresses it.
const analystSystem = `You are a sharp, well-informed analyst. Answer the question or react to the content you are shown. Be factual and specific. If you are unsure, say what you do know and what you do not. Use web search results when they are relevant and current.`

// summarizerSystem condenses long analyses before crafting.
const summarizerSystem = `Condense the following analysis to its essential points. Keep every concrete fact, number, and name that matters. Drop hedging and repetition.`

// crafterSystem turns an analysis into a tweet-shaped reply.
const crafterSystem = `You write replies for a social media account. Turn the analysis you are given into a single reply tweet. Rules:
- Answer the person directly. No greetings, no sign-offs.
- Plain text only. No hashtags unless they appear in the question. No markdown.
- Do not include citation markers or reference lists.
- Stay under the character limit you are given.
- Do not @-mention anyone.`

// crafterStrictAddendum tightens the crafter after a banned-phrase hit.
const crafterStrictAddendum = `

IMPORTANT: your previous attempt opened with a canned greeting or filler phrase. Do not use phrases like "Hey there!", "Hi!", "Hello!", "Stay safe", "Be careful" or "Be mindful". Start directly with substance.`

func analysisPrompt(mention, context string, urls []string) string {
	var b strings.Builder
	b.WriteString("Someone asked this on social media:\n\n")
	b.WriteString(mention)
	if context != "" {
		b.WriteString("\n\nSurrounding conversation:\n")
		b.WriteString(context)
	}
	if len(urls) > 0 {
		b.WriteString("\n\nLinks referenced:\n")
		for _, u := range urls {
			b.WriteString(u)
			b.WriteByte('\n')
		}
	}
	b.WriteString("\nGive your full analysis or answer.")
	return b.String()
}

func craftPrompt(analysis string, limit int) string {
	return fmt.Sprintf(
		"Analysis to compress into a reply (hard limit %d characters):\n\n%s",
		limit, analysis)
}

func shortenPrompt(reply string, limit int) string {
	return fmt.Sprintf(
		"This reply is over the %d character limit. Rewrite it to fit, keeping the core point:\n\n%s",
		limit, reply)
}
