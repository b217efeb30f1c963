package orchestrator

import (
	"regexp"
	"strings"
)

// Line openers that almost never start a line of prose.
var codeLineStart = regexp.MustCompile(
	`^(?:(?:def|class|func|fn|import|package|public|private|protected|const|let|var|return|SELECT|INSERT|UPDATE)\b|` +
		`from\s+\S+\s+import\b|#include|(?:if|for|while)\s*\(|try\s*[:{]|<\?php|<!DOCTYPE|<html)`)

const codeSymbols = "{}();=<>[]"

// LooksLikeCode reports whether text is literal source code rather than a
// natural-language prompt. It needs several independent signals so short
// prose such as "write a function" stays on the enhancement path.
func LooksLikeCode(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	score := 0
	keywordHit := false
	structural := 0
	for _, line := range strings.Split(trimmed, "\n") {
		l := strings.TrimSpace(line)
		if l == "" {
			continue
		}
		if !keywordHit && codeLineStart.MatchString(l) {
			keywordHit = true
		}
		if strings.HasSuffix(l, ";") || strings.HasSuffix(l, "{") ||
			strings.HasPrefix(l, "}") || strings.HasSuffix(l, "):") {
			structural++
		}
	}
	if keywordHit {
		score += 2
	}
	score += min(structural, 3)

	var symbols, visible int
	for _, r := range trimmed {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		visible++
		if strings.ContainsRune(codeSymbols, r) {
			symbols++
		}
	}
	if visible > 0 && float64(symbols)/float64(visible) > 0.08 {
		score++
	}

	return score >= 3
}
