package textsrc

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var frontmatter = regexp.MustCompile(`(?s)\A---\r?\n.*?\r?\n---\r?\n`)

// MarkdownOptions control how markdown is turned into speakable text.
type MarkdownOptions struct {
	// ReadCodeBlocks replaces code blocks with a short marker instead of
	// dropping them.
	ReadCodeBlocks bool
	// DescribeImages reads image alt text.
	DescribeImages bool
}

// StripMarkdown renders markdown as plain prose. Block elements end in a
// sentence terminator so they are read with a pause between them.
func StripMarkdown(markdown string, opts MarkdownOptions) string {
	src := []byte(frontmatter.ReplaceAllString(markdown, ""))

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	reader := text.NewReader(src)
	doc := md.Parser().Parse(reader)

	w := &prose{opts: opts, source: reader.Source()}
	w.walk(doc)
	return strings.Join(strings.Fields(w.buf.String()), " ")
}

type prose struct {
	opts   MarkdownOptions
	source []byte
	buf    strings.Builder
}

// endSentence terminates the text written so far unless it already ends
// in punctuation.
func (p *prose) endSentence() {
	s := strings.TrimRight(p.buf.String(), " ")
	if s == "" {
		return
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
		p.buf.WriteString(" ")
	default:
		p.buf.WriteString(". ")
	}
}

func (p *prose) children(n ast.Node) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		p.walk(c)
	}
}

func (p *prose) walk(node ast.Node) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock:
		if p.opts.ReadCodeBlocks {
			p.buf.WriteString("Code block omitted. ")
		}
		return

	case *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		p.buf.Write(n.Segment.Value(p.source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			p.buf.WriteString(" ")
		}
		return

	case *ast.String:
		p.buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				p.buf.Write(t.Segment.Value(p.source))
			}
		}
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem, *ast.TextBlock:
		p.children(n)
		p.endSentence()
		return

	case *ast.Image:
		if !p.opts.DescribeImages {
			return
		}
		p.buf.WriteString("Image: ")
		p.children(n)
		p.endSentence()
		return

	case *ast.AutoLink:
		// Bare URLs are not worth reading out.
		return

	case *ast.Blockquote:
		p.buf.WriteString("Quote: ")
		p.children(n)
		return

	case *ast.ThematicBreak:
		p.endSentence()
		return

	case *extast.TableCell:
		p.children(n)
		p.trimSuffix(" ")
		p.buf.WriteString(", ")
		return

	case *extast.TableRow, *extast.TableHeader:
		p.children(n)
		p.trimSuffix(", ")
		p.endSentence()
		return

	case *extast.TaskCheckBox:
		return
	}

	p.children(node)
}

func (p *prose) trimSuffix(suffix string) {
	s := p.buf.String()
	if trimmed := strings.TrimSuffix(s, suffix); len(trimmed) != len(s) {
		p.buf.Reset()
		p.buf.WriteString(trimmed)
	}
}
