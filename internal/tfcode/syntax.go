package tfcode

import (
	"fmt"
	"strings"
)

// ProviderKeyword must appear at least once in any source we accept
const ProviderKeyword = "provider"

// CheckSyntax runs structural checks over Terraform source and returns one
// diagnostic per failed check. An empty result means the source passed.
//
// This is a pre-filter, not a parser: braces are counted, unescaped double
// quotes must pair up, and a provider declaration must be present.
func CheckSyntax(content string) []string {
	var diagnostics []string

	open := strings.Count(content, "{")
	closing := strings.Count(content, "}")
	if open != closing {
		diagnostics = append(diagnostics, fmt.Sprintf("unbalanced braces: %d opening vs %d closing", open, closing))
	}

	if quotes := countUnescapedQuotes(content); quotes%2 != 0 {
		diagnostics = append(diagnostics, fmt.Sprintf("unbalanced double quotes: %d found", quotes))
	}

	if !strings.Contains(content, ProviderKeyword) {
		diagnostics = append(diagnostics, "no provider block found")
	}

	return diagnostics
}

// countUnescapedQuotes counts '"' not immediately preceded by a backslash
func countUnescapedQuotes(content string) int {
	n := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '"' && (i == 0 || content[i-1] != '\\') {
			n++
		}
	}
	return n
}
