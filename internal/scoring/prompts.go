package scoring

import (
	"fmt"
	"strings"
)

const (
	triageMaxTokens  = 10
	summaryMaxTokens = 150
)

func triagePrompt(title, abstract string, topics []string) string {
	return fmt.Sprintf(`Rate the relevance of this paper to the following research interests: %s

Title: %s
Abstract: %s

Respond with a single number between 0.0 and 1.0 and nothing else.`,
		strings.Join(topics, ", "), title, abstract)
}

func summaryPrompt(title, abstract string) string {
	return fmt.Sprintf(`Summarize this paper in exactly three sentences: what problem it solves, what approach it takes, and why the result matters.

Title: %s
Abstract: %s`,
		title, abstract)
}
