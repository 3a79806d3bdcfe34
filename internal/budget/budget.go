// Package budget estimates prompt size for the recommend assistant. Because
// several chat backends with different tokenizers are supported, it uses a
// conservative character heuristic: 1 token ≈ 4 characters.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default prompt budget in tokens. It fits
	// an 8k-context model with room left for the reply. Override with
	// RELIEF_MAX_CONTEXT_TOKENS.
	DefaultMaxContextTokens = 6000

	// messageOverhead approximates the per-message framing most APIs add.
	messageOverhead = 4
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token count of msgs, role and
// content included.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitItems returns the longest prefix of items whose estimated size, added
// to the fixed messages, stays within maxTokens. items must be ordered best
// first; the lowest-ranked entries are the ones dropped. When fixed alone
// exceeds the budget the result is empty and the caller decides what to do.
func FitItems(fixed []*schema.Message, items []string, maxTokens int) []string {
	used := EstimateMessages(fixed)
	for i, it := range items {
		// +1 for the separating newline.
		used += Estimate(it) + 1
		if used > maxTokens {
			return items[:i]
		}
	}
	return items
}
