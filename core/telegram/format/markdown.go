package format

import (
	"fmt"
	"regexp"
	"strings"
)

var mdV1Re = regexp.MustCompile("([_*\\[`])")

// EscapeMarkdown escapes special characters for Telegram Markdown (legacy mode).
func EscapeMarkdown(text string) string {
	return mdV1Re.ReplaceAllString(text, `\$1`)
}

// Mono wraps the value in inline code markup. Phone numbers and one-time
// codes are rendered monospaced so they are tappable-to-copy in clients.
func Mono(v string) string {
	return "`" + strings.ReplaceAll(v, "`", "'") + "`"
}

// Bold wraps the value in bold markup after escaping it.
func Bold(v string) string {
	return "*" + EscapeMarkdown(v) + "*"
}

// Item renders a numbered list line with a monospaced value.
func Item(i int, v string) string {
	return fmt.Sprintf("%d. %s", i, Mono(v))
}
