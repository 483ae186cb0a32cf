// Package sample produces the short content excerpt returned with every
// scrape result.
package sample

import (
	"log/slog"
	nurl "net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Excerpt modes.
const (
	ModeRaw      = "raw"
	ModeText     = "text"
	ModeMarkdown = "markdown"
)

// minReadableLength is the minimum TextContent length for readability
// output to be used; shorter results fall back to the tokenizer text.
const minReadableLength = 50

// Sampler renders excerpts. The converter is created once and reused
// across requests (goroutine-safe).
type Sampler struct {
	md *converter.Converter
}

// New creates a Sampler.
func New() *Sampler {
	return &Sampler{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// Excerpt returns at most n runes of the page rendered in the given mode.
// Unknown modes are treated as raw. n <= 0 returns an empty string.
func (s *Sampler) Excerpt(rawHTML, sourceURL, mode string, n int) string {
	if n <= 0 || rawHTML == "" {
		return ""
	}

	var out string
	switch mode {
	case ModeText:
		out = s.text(rawHTML, sourceURL)
	case ModeMarkdown:
		md, err := s.md.ConvertString(rawHTML, converter.WithDomain(sourceURL))
		if err != nil {
			slog.Warn("sample: markdown conversion failed, using raw excerpt",
				"url", sourceURL, "error", err,
			)
			out = Raw(rawHTML)
		} else {
			out = strings.TrimSpace(md)
		}
	default:
		out = Raw(rawHTML)
	}
	return Truncate(out, n)
}

// text runs readability and falls back to the visible text of the whole
// document when it cannot locate a main content block.
func (s *Sampler) text(rawHTML, sourceURL string) string {
	if u, err := nurl.Parse(sourceURL); err == nil {
		article, err := readability.FromReader(strings.NewReader(rawHTML), u)
		if err == nil && len(strings.TrimSpace(article.TextContent)) >= minReadableLength {
			return collapse(article.TextContent)
		}
	}
	return VisibleText(rawHTML)
}

// Raw collapses whitespace runs into single spaces and drops non-printable
// characters.
func Raw(s string) string {
	return collapse(s)
}

// VisibleText returns the text nodes of an HTML document outside script,
// style and noscript elements, whitespace-collapsed.
func VisibleText(rawHTML string) string {
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapse(b.String())
		case html.StartTagToken:
			if isHiddenTag(z) {
				skip++
			}
		case html.EndTagToken:
			if isHiddenTag(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHiddenTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func collapse(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
		case r == utf8.RuneError || !unicode.IsPrint(r):
			// dropped
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
