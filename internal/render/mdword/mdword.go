// Package mdword converts the Markdown summary into a Word document.
package mdword

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"hsmt-backend/internal/render/docx"
	"hsmt-backend/internal/shared/util"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

// headingSizes are half-points for h1..h6.
var headingSizes = [...]int{32, 28, 26, 24, 22, 22}

// Convert renders md as a standalone .docx.
func Convert(md string) ([]byte, error) {
	blocks, err := Blocks(md)
	if err != nil {
		return nil, err
	}
	return docx.NewDocument(blocks...)
}

// Blocks renders md into body-level WordprocessingML nodes.
func Blocks(md string) ([]*docx.Node, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return nil, fmt.Errorf("markdown: %w", err)
	}
	doc, err := html.Parse(&buf)
	if err != nil {
		return nil, fmt.Errorf("html: %w", err)
	}
	body := findBody(doc)
	if body == nil {
		return nil, nil
	}
	c := &converter{}
	c.blocks(body, 0)
	return c.out, nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if b := findBody(ch); b != nil {
			return b
		}
	}
	return nil
}

type converter struct {
	out []*docx.Node
}

// blocks converts the block children of n; indent counts blockquote nesting.
func (c *converter) blocks(n *html.Node, indent int) {
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.TextNode {
			if t := strings.TrimSpace(ch.Data); t != "" {
				c.out = append(c.out, docx.Paragraph(docx.ParaProps{IndentTw: indent * 720}, docx.Run(t, docx.RunStyle{})))
			}
			continue
		}
		if ch.Type != html.ElementNode {
			continue
		}
		switch ch.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			level := int(ch.Data[1] - '0')
			runs := inline(ch, docx.RunStyle{Bold: true, SizeHalfPt: headingSizes[level-1]})
			c.out = append(c.out, docx.Paragraph(docx.ParaProps{Style: fmt.Sprintf("Heading%d", level)}, runs...))
		case atom.P:
			c.out = append(c.out, docx.Paragraph(docx.ParaProps{IndentTw: indent * 720}, inline(ch, docx.RunStyle{})...))
		case atom.Ul, atom.Ol:
			c.list(ch, 0)
		case atom.Table:
			c.out = append(c.out, table(ch))
		case atom.Pre:
			text := strings.TrimRight(textOf(ch), "\n")
			c.out = append(c.out, docx.Paragraph(docx.ParaProps{IndentTw: 360}, docx.Run(text, docx.RunStyle{Code: true})))
		case atom.Blockquote:
			c.blocks(ch, indent+1)
		case atom.Hr:
			c.out = append(c.out, docx.Paragraph(docx.ParaProps{}))
		default:
			c.blocks(ch, indent)
		}
	}
}

// list emits one numbered paragraph per item; nested lists go one level deeper.
func (c *converter) list(n *html.Node, level int) {
	numID := docx.BulletNumID
	if n.DataAtom == atom.Ol {
		numID = docx.DecimalNumID
	}
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		var runs []*docx.Node
		var nested []*html.Node
		for ch := li.FirstChild; ch != nil; ch = ch.NextSibling {
			switch {
			case ch.Type == html.ElementNode && (ch.DataAtom == atom.Ul || ch.DataAtom == atom.Ol):
				nested = append(nested, ch)
			case ch.Type == html.ElementNode && ch.DataAtom == atom.P:
				runs = append(runs, inline(ch, docx.RunStyle{})...)
			default:
				runs = append(runs, inlineNode(ch, docx.RunStyle{})...)
			}
		}
		c.out = append(c.out, docx.Paragraph(docx.ParaProps{NumID: numID, NumLevel: level}, runs...))
		for _, sub := range nested {
			c.list(sub, min(level+1, 8))
		}
	}
}

func table(n *html.Node) *docx.Node {
	var rows []*docx.Node
	cols := 0
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		for ch := x.FirstChild; ch != nil; ch = ch.NextSibling {
			if ch.Type != html.ElementNode {
				continue
			}
			if ch.DataAtom != atom.Tr {
				walk(ch)
				continue
			}
			var cells []*docx.Node
			for td := ch.FirstChild; td != nil; td = td.NextSibling {
				if td.Type != html.ElementNode || (td.DataAtom != atom.Td && td.DataAtom != atom.Th) {
					continue
				}
				style := docx.RunStyle{Bold: td.DataAtom == atom.Th}
				cells = append(cells, docx.Cell(docx.CellOptions{Center: true}, docx.Paragraph(docx.ParaProps{}, inline(td, style)...)))
			}
			cols = max(cols, len(cells))
			rows = append(rows, docx.Row(cells...))
		}
	}
	walk(n)
	grid := make([]int, cols)
	for i := range grid {
		grid[i] = 9000 / max(cols, 1)
	}
	return docx.Table(grid, rows...)
}

func inline(n *html.Node, st docx.RunStyle) []*docx.Node {
	var out []*docx.Node
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		out = append(out, inlineNode(ch, st)...)
	}
	return out
}

func inlineNode(n *html.Node, st docx.RunStyle) []*docx.Node {
	switch n.Type {
	case html.TextNode:
		text := strings.ReplaceAll(n.Data, "\n", " ")
		if text == "" {
			return nil
		}
		return []*docx.Node{docx.Run(text, st)}
	case html.ElementNode:
	default:
		return nil
	}
	switch n.DataAtom {
	case atom.Strong, atom.B:
		st.Bold = true
	case atom.Em, atom.I:
		st.Italic = true
	case atom.U, atom.Ins:
		st.Underline = true
	case atom.Code:
		st.Code = true
	case atom.Br:
		return []*docx.Node{docx.Run("\n", st)}
	}
	return inline(n, st)
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		if x.Type == html.TextNode {
			b.WriteString(x.Data)
		}
		for ch := x.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return b.String()
}

// FileName is Tomtat_HSMT_<investor>_<proposal>_<stamp>.docx.
func FileName(investor, proposal, stamp string) string {
	return "Tomtat_HSMT_" + util.FileStem(investor, proposal) + "_" + stamp + ".docx"
}
