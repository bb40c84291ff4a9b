package internal

import (
	"strings"

	"golang.org/x/net/html"
)

var nonContentTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"head": true, "title": true, "meta": true, "link": true,
	"iframe": true, "svg": true, "textarea": true,
}

// documentRoots are walked through but never treated as score candidates.
var documentRoots = map[string]bool{
	"html": true, "body": true,
}

// WalkNodes visits node and its descendants in document order.
// Returning false from fn skips the children of the visited node.
func WalkNodes(node *html.Node, fn func(*html.Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	for child := node.FirstChild; child != nil; {
		next := child.NextSibling
		WalkNodes(child, fn)
		child = next
	}
}

func FindElementByTag(doc *html.Node, tagName string) *html.Node {
	var result *html.Node
	WalkNodes(doc, func(n *html.Node) bool {
		if result != nil {
			return false
		}
		if n.Type == html.ElementNode && n.Data == tagName {
			result = n
			return false
		}
		return true
	})
	return result
}

func FindElementByID(doc *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	return FindElementByAttr(doc, "id", id)
}

func FindElementByAttr(doc *html.Node, key, val string) *html.Node {
	var result *html.Node
	WalkNodes(doc, func(n *html.Node) bool {
		if result != nil {
			return false
		}
		if n.Type == html.ElementNode {
			if v, ok := GetAttr(n, key); ok && v == val {
				result = n
				return false
			}
		}
		return true
	})
	return result
}

// TextContentLimit returns the concatenated data of every text node below n,
// the value a browser reports as textContent, capped at limit bytes. A limit
// of zero means no cap. The second result reports whether text was dropped.
func TextContentLimit(n *html.Node, limit int) (string, bool) {
	if n == nil {
		return "", false
	}
	if n.Type == html.TextNode {
		if limit > 0 && len(n.Data) > limit {
			return n.Data[:limit], true
		}
		return n.Data, false
	}
	var sb strings.Builder
	sb.Grow(builderInitialSize)
	truncated := false
	WalkNodes(n, func(node *html.Node) bool {
		if truncated {
			return false
		}
		if node.Type == html.TextNode {
			data := node.Data
			if limit > 0 && sb.Len()+len(data) > limit {
				data = data[:limit-sb.Len()]
				truncated = true
			}
			sb.WriteString(data)
		}
		return true
	})
	return sb.String(), truncated
}

// IsNonContentElement reports whether the subtree under tag is never scanned.
func IsNonContentElement(tag string) bool {
	return nonContentTags[tag]
}

// IsDocumentRoot reports whether tag is a structural root such as body.
func IsDocumentRoot(tag string) bool {
	return documentRoots[tag]
}

// DetachChildren removes and returns the children of n in order.
func DetachChildren(n *html.Node) []*html.Node {
	var children []*html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		children = append(children, c)
		c = next
	}
	return children
}

// ReplaceChildren detaches the current children of n and appends the given ones.
func ReplaceChildren(n *html.Node, children []*html.Node) {
	DetachChildren(n)
	for _, c := range children {
		if c.Parent != nil {
			c.Parent.RemoveChild(c)
		}
		n.AppendChild(c)
	}
}

// Depth returns the nesting depth of the deepest node below n.
func Depth(n *html.Node) int {
	maxDepth := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if d := Depth(c) + 1; d > maxDepth {
			maxDepth = d
		}
	}
	return maxDepth
}

func MatchesPattern(value string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}
	return false
}
