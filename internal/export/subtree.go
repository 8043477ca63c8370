package export

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// node is one element of a captured record subtree. Subtrees are built per
// record and discarded immediately after the record's rows are written, so
// memory stays bounded by the largest single record.
type node struct {
	name     string
	attrs    []xml.Attr
	text     strings.Builder
	children []*node
}

// captureSubtree consumes tokens until the end of se's element and returns
// the isolated tree.
func captureSubtree(dec *xml.Decoder, se xml.StartElement) (*node, error) {
	root := &node{name: se.Name.Local, attrs: se.Attr}
	stack := []*node{root}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("capture <%s>: %w", se.Name.Local, err)
		}
		cur := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			child := &node{name: t.Name.Local, attrs: t.Attr}
			cur.children = append(cur.children, child)
			stack = append(stack, child)
		case xml.CharData:
			cur.text.Write(t)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return root, nil
			}
		}
	}
}

// directText is the element's own character data, trimmed.
func (n *node) directText() string {
	return strings.TrimSpace(n.text.String())
}

// deepText concatenates the element's text with all descendant text, in
// document order, then trims.
func (n *node) deepText() string {
	var b strings.Builder
	n.appendDeepText(&b)
	return strings.TrimSpace(b.String())
}

func (n *node) appendDeepText(b *strings.Builder) {
	b.WriteString(n.text.String())
	for _, c := range n.children {
		c.appendDeepText(b)
	}
}

func (n *node) attr(name string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (n *node) childrenNamed(name string) []*node {
	var out []*node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// selectValues evaluates a field selector against the subtree. Supported
// forms: ".", "./text()", "./@attr" and "./A/B[/@attr|/text()]". Anything
// unrecognized, missing or malformed yields no values; selection never
// fails a record.
func selectValues(n *node, selector string) []string {
	selector = strings.TrimSpace(selector)
	switch selector {
	case "", ".":
		if v := n.deepText(); v != "" {
			return []string{v}
		}
		return nil
	case "./text()":
		if v := n.directText(); v != "" {
			return []string{v}
		}
		return nil
	}

	segs := strings.Split(selector, "/")
	if len(segs) < 2 || segs[0] != "." {
		return nil
	}
	segs = segs[1:]

	current := []*node{n}
	for i, seg := range segs {
		last := i == len(segs)-1
		switch {
		case strings.HasPrefix(seg, "@"):
			if !last {
				return nil
			}
			var out []string
			for _, c := range current {
				if v, ok := c.attr(seg[1:]); ok {
					if v = strings.TrimSpace(v); v != "" {
						out = append(out, v)
					}
				}
			}
			return out
		case seg == "text()":
			if !last {
				return nil
			}
			var out []string
			for _, c := range current {
				if v := c.directText(); v != "" {
					out = append(out, v)
				}
			}
			return out
		case seg == "" || seg == ".":
			return nil
		default:
			var next []*node
			for _, c := range current {
				next = append(next, c.childrenNamed(seg)...)
			}
			if len(next) == 0 {
				return nil
			}
			current = next
		}
	}

	var out []string
	for _, c := range current {
		if v := c.deepText(); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// descendantsAt walks a relative element chain like "authors/author" and
// returns every matching descendant in document order.
func descendantsAt(n *node, relPath string) []*node {
	segs := strings.Split(strings.Trim(relPath, "/"), "/")
	current := []*node{n}
	for _, seg := range segs {
		if seg == "" || seg == "." {
			continue
		}
		var next []*node
		for _, c := range current {
			next = append(next, c.childrenNamed(seg)...)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}
