// Package tfcode holds the cheap text-level passes run over generated
// Terraform before it is trusted as source: fence stripping and a coarse
// structural check. Neither depends on the Terraform toolchain.
package tfcode

import "strings"

const fence = "```"

// Sanitize strips a markdown code fence wrapped around generated source.
//
// Only input that starts with a fence is touched. The opening line (fence plus
// optional language tag) is dropped; the last fence is treated as the closing
// delimiter when it occurs after the first line break, otherwise everything
// after the opening line is kept. The result is trimmed. Sanitize never fails.
func Sanitize(content string) string {
	if !strings.HasPrefix(content, fence) {
		return content
	}

	firstNewline := strings.Index(content, "\n")
	if firstNewline <= 0 {
		return content
	}

	closing := strings.LastIndex(content, fence)
	if closing > firstNewline {
		return strings.TrimSpace(content[firstNewline+1 : closing])
	}
	return strings.TrimSpace(content[firstNewline+1:])
}
