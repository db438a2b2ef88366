// Package docx edits and builds WordprocessingML packages.
package docx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"
)

const (
	WMLNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	RelNamespace = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	xmlNamespace = "http://www.w3.org/XML/1998/namespace"
)

// Node is one element or text run of a parsed part. Element names carry their
// prefix in Local ("w:tbl") so new nodes can be built without namespace URIs.
type Node struct {
	Name     xml.Name
	Attr     []xml.Attr
	Children []*Node
	Text     string
	IsText   bool
}

// Part is a parsed XML part that keeps the original root tag verbatim.
type Part struct {
	Root      *Node
	header    string
	rootStart string
	rootEnd   string
}

var xmlHeaderPattern = regexp.MustCompile(`(?s)^\s*(<\?xml[^>]+\?>)`)

// ParsePart parses an XML part such as word/document.xml.
func ParsePart(data []byte) (*Part, error) {
	text := string(data)
	rootStart, rootEnd, err := extractRootTags(text)
	if err != nil {
		return nil, err
	}
	header := ""
	if m := xmlHeaderPattern.FindStringSubmatch(text); len(m) > 0 {
		header = m[1]
		text = strings.TrimSpace(text[len(m[0]):])
	}

	decoder := xml.NewDecoder(strings.NewReader(text))
	var stack []*Node
	var root *Node
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name, Attr: t.Attr}
			if len(stack) == 0 {
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) == 0 || len(t) == 0 {
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, &Node{IsText: true, Text: string(t)})
		}
	}
	if root == nil {
		return nil, errors.New("xml part has no root element")
	}

	prefixes := prefixMap(root)
	prefixes[xmlNamespace] = "xml"
	for _, child := range root.Children {
		applyPrefixes(child, prefixes)
	}
	return &Part{Root: root, header: header, rootStart: rootStart, rootEnd: rootEnd}, nil
}

// Bytes encodes the part with its original root tag.
func (p *Part) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if p.header != "" {
		buf.WriteString(p.header)
		buf.WriteByte('\n')
	}
	buf.WriteString(p.rootStart)
	enc := xml.NewEncoder(&buf)
	for _, child := range p.Root.Children {
		if err := encodeNode(enc, child); err != nil {
			return nil, err
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	buf.WriteString(p.rootEnd)
	return buf.Bytes(), nil
}

func encodeNode(enc *xml.Encoder, n *Node) error {
	if n.IsText {
		return enc.EncodeToken(xml.CharData(n.Text))
	}
	start := xml.StartElement{Name: n.Name, Attr: n.Attr}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := encodeNode(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

func isNSAttr(a xml.Attr) bool {
	return a.Name.Space == "xmlns" || (a.Name.Space == "" && (a.Name.Local == "xmlns" || strings.HasPrefix(a.Name.Local, "xmlns:")))
}

func prefixMap(root *Node) map[string]string {
	out := map[string]string{}
	for _, a := range root.Attr {
		switch {
		case a.Name.Space == "xmlns":
			out[a.Value] = a.Name.Local
		case a.Name.Space == "" && strings.HasPrefix(a.Name.Local, "xmlns:"):
			out[a.Value] = strings.TrimPrefix(a.Name.Local, "xmlns:")
		}
	}
	return out
}

func applyPrefixes(n *Node, prefixes map[string]string) {
	if n.IsText {
		return
	}
	if p, ok := prefixes[n.Name.Space]; ok && p != "" {
		n.Name = xml.Name{Local: p + ":" + n.Name.Local}
	}
	for i, a := range n.Attr {
		if isNSAttr(a) {
			continue
		}
		if p, ok := prefixes[a.Name.Space]; ok && p != "" {
			n.Attr[i].Name = xml.Name{Local: p + ":" + a.Name.Local}
		}
	}
	for _, c := range n.Children {
		applyPrefixes(c, prefixes)
	}
}

func extractRootTags(text string) (string, string, error) {
	i := 0
	for {
		idx := strings.IndexByte(text[i:], '<')
		if idx == -1 {
			return "", "", errors.New("root start tag not found")
		}
		i += idx
		switch {
		case strings.HasPrefix(text[i:], "<?"):
			end := strings.Index(text[i:], "?>")
			if end == -1 {
				return "", "", errors.New("xml header not terminated")
			}
			i += end + 2
			continue
		case strings.HasPrefix(text[i:], "<!"):
			end := strings.IndexByte(text[i:], '>')
			if end == -1 {
				return "", "", errors.New("declaration not terminated")
			}
			i += end + 1
			continue
		}
		break
	}
	start := i
	var quote byte
	for i = start + 1; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			quote = c
			continue
		}
		if c == '>' {
			break
		}
	}
	if i >= len(text) {
		return "", "", errors.New("root start tag not terminated")
	}
	rootStart := text[start : i+1]
	name := strings.FieldsFunc(rootStart[1:], func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '/' || r == '>'
	})
	if len(name) == 0 {
		return "", "", errors.New("root tag name missing")
	}
	endTag := "</" + name[0] + ">"
	endPos := strings.LastIndex(text, endTag)
	if endPos == -1 {
		return "", "", errors.New("root end tag not found")
	}
	return rootStart, endTag, nil
}

// Walk visits n depth-first until visit returns false.
func Walk(n *Node, visit func(*Node) bool) bool {
	if n == nil {
		return true
	}
	if !visit(n) {
		return false
	}
	for _, c := range n.Children {
		if !Walk(c, visit) {
			return false
		}
	}
	return true
}

// Find returns the first element named local ("w:tbl") under n.
func Find(n *Node, local string) *Node {
	var match *Node
	Walk(n, func(x *Node) bool {
		if x.Is(local) {
			match = x
			return false
		}
		return true
	})
	return match
}

// Is reports whether n is the element named local.
func (n *Node) Is(local string) bool {
	return n != nil && !n.IsText && n.Name.Local == local
}

// TextContent concatenates every text node under n.
func (n *Node) TextContent() string {
	var b strings.Builder
	Walk(n, func(x *Node) bool {
		if x.IsText {
			b.WriteString(x.Text)
		}
		return true
	})
	return b.String()
}

// Clone deep-copies n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Name: n.Name, Text: n.Text, IsText: n.IsText}
	if len(n.Attr) > 0 {
		out.Attr = append([]xml.Attr(nil), n.Attr...)
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, c.Clone())
	}
	return out
}

// Child returns the first direct child named local.
func (n *Node) Child(local string) *Node {
	for _, c := range n.Children {
		if c.Is(local) {
			return c
		}
	}
	return nil
}
