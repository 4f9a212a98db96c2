package telegram

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	codeBlockRe  = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\n?(.*?)```")
	inlineCodeRe = regexp.MustCompile("`([^`\n]+)`")
	boldRe       = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	linkRe       = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^)\s]+)\)`)
)

// hasMarkdown reports whether text uses any markup MarkdownToHTML converts.
func hasMarkdown(text string) bool {
	return strings.Contains(text, "```") ||
		inlineCodeRe.MatchString(text) ||
		boldRe.MatchString(text) ||
		linkRe.MatchString(text)
}

// MarkdownToHTML converts the common agent markdown (code blocks, inline
// code, bold and links) to Telegram HTML. Everything else is escaped.
func MarkdownToHTML(text string) string {
	var blocks []string
	text = codeBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		body := codeBlockRe.FindStringSubmatch(m)[1]
		blocks = append(blocks, "<pre>"+htmlEscape(strings.TrimRight(body, "\n"))+"</pre>")
		return fmt.Sprintf("\x00%d\x00", len(blocks)-1)
	})

	text = htmlEscape(text)
	text = inlineCodeRe.ReplaceAllString(text, "<code>$1</code>")
	text = boldRe.ReplaceAllString(text, "<b>$1</b>")
	text = linkRe.ReplaceAllString(text, `<a href="$2">$1</a>`)

	for i, b := range blocks {
		text = strings.Replace(text, fmt.Sprintf("\x00%d\x00", i), b, 1)
	}
	return text
}

// StripFormatting removes the markup MarkdownToHTML understands.
func StripFormatting(text string) string {
	text = codeBlockRe.ReplaceAllString(text, "$1")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = boldRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1 ($2)")
	return text
}

func htmlEscape(text string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(text)
}
