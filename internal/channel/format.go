package channel

import (
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var (
	reCodeBlock  = regexp.MustCompile("(?s)```[\\w+-]*\\n?(.*?)```")
	reInlineCode = regexp.MustCompile("`([^`\\n]+)`")
	reHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	reBullet     = regexp.MustCompile(`(?m)^(\s*)[*-]\s+`)
	reBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBoldUnder  = regexp.MustCompile(`__(.+?)__`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
)

// FormatMarkup converts model output (GitHub-style Markdown) into the given
// Telegram parse mode. The conversion is best-effort: Telegram may still
// reject the result, in which case the caller resends plain text.
func FormatMarkup(text, parseMode string) string {
	switch parseMode {
	case tgbotapi.ModeHTML:
		return markdownToHTML(text)
	case tgbotapi.ModeMarkdown:
		return markdownToLegacy(text)
	case tgbotapi.ModeMarkdownV2:
		return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, text)
	default:
		return text
	}
}

// markdownToLegacy rewrites constructs the legacy Markdown mode lacks.
// Code spans are left untouched.
func markdownToLegacy(text string) string {
	return withCodeProtected(text, func(s string) string {
		s = reHeading.ReplaceAllString(s, "*$1*")
		s = reBullet.ReplaceAllString(s, "$1• ")
		s = reBold.ReplaceAllString(s, "*$1*")
		s = reBoldUnder.ReplaceAllString(s, "*$1*")
		return s
	}, func(code string, block bool) string {
		if block {
			return "```\n" + code + "```"
		}
		return "`" + code + "`"
	})
}

func markdownToHTML(text string) string {
	return withCodeProtected(text, func(s string) string {
		s = escapeHTML(s)
		s = reHeading.ReplaceAllString(s, "<b>$1</b>")
		s = reBullet.ReplaceAllString(s, "$1• ")
		s = reLink.ReplaceAllString(s, `<a href="$2">$1</a>`)
		s = reBold.ReplaceAllString(s, "<b>$1</b>")
		s = reBoldUnder.ReplaceAllString(s, "<b>$1</b>")
		return s
	}, func(code string, block bool) string {
		if block {
			return "<pre>" + escapeHTML(code) + "</pre>"
		}
		return "<code>" + escapeHTML(code) + "</code>"
	})
}

// withCodeProtected applies transform to everything outside code spans and
// render to the code spans themselves.
func withCodeProtected(text string, transform func(string) string, render func(code string, block bool) string) string {
	var codes []string
	var blocks []bool
	placeholder := func(code string, block bool) string {
		codes = append(codes, code)
		blocks = append(blocks, block)
		return "\x00" + string(rune('A'+len(codes)-1)) + "\x00"
	}

	text = reCodeBlock.ReplaceAllStringFunc(text, func(m string) string {
		return placeholder(reCodeBlock.FindStringSubmatch(m)[1], true)
	})
	text = reInlineCode.ReplaceAllStringFunc(text, func(m string) string {
		return placeholder(reInlineCode.FindStringSubmatch(m)[1], false)
	})

	text = transform(text)

	for i, code := range codes {
		text = strings.Replace(text, "\x00"+string(rune('A'+i))+"\x00", render(code, blocks[i]), 1)
	}
	return text
}

func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}
