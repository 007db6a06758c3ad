package taskctx

// EstimateTokens approximates the token count of text. Four bytes per token
// is a coarse but deterministic estimate that works for mixed code and prose;
// exact counts belong to the provider, not the pipeline.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// truncateTokens cuts text down to roughly maxTokens, on a rune boundary.
func truncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	maxBytes := maxTokens * 4
	if len(text) <= maxBytes {
		return text
	}
	runes := []rune(text)
	// Walk back until the byte length fits.
	for len(runes) > 0 && len(string(runes)) > maxBytes {
		drop := (len(string(runes)) - maxBytes + 3) / 4
		if drop < 1 {
			drop = 1
		}
		if drop > len(runes) {
			drop = len(runes)
		}
		runes = runes[:len(runes)-drop]
	}
	return string(runes)
}
