package internal

import (
	"strings"

	"golang.org/x/net/html"
)

// Category names the section of a test a score belongs to.
type Category string

const (
	CategoryTotal   Category = "total"
	CategoryReading Category = "reading"
	CategoryMath    Category = "math"
	CategoryWriting Category = "writing"
)

// Categories lists every category in settings order.
var Categories = []Category{CategoryTotal, CategoryReading, CategoryMath, CategoryWriting}

var topicKeywords = lowerAll([]string{
	"SAT",
	"Scholastic Assessment Test",
	"Total Score",
	"Evidence-Based Reading and Writing",
	"Math",
	"Reading",
	"Writing and Language",
})

var totalScorePhrases = []string{
	"total score",
	"your total score",
	"sat total",
	"overall score",
	"composite score",
	"final score",
}

// Element is the view of a page node the context heuristics need: its text
// and its parent. Parent returns nil at the top of the tree.
type Element interface {
	Text() string
	Parent() Element
}

// NodeElement adapts an *html.Node element to Element.
type NodeElement struct {
	Node *html.Node
}

// Text is the text content of the node without the nodes the veil injects,
// so a placeholder or the reveal button never lends context to a neighbour.
func (e NodeElement) Text() string {
	if e.Node == nil {
		return ""
	}
	var sb strings.Builder
	WalkNodes(e.Node, func(n *html.Node) bool {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			return !IsInjected(n)
		}
		return true
	})
	return sb.String()
}

func (e NodeElement) Parent() Element {
	if e.Node == nil {
		return nil
	}
	p := e.Node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return NodeElement{Node: p}
}

// IsTopicallyRelevant reports whether el or its two nearest ancestors
// mention the test by one of the known keywords.
func IsTopicallyRelevant(el Element) bool {
	if el == nil {
		return false
	}
	return MatchesPattern(contextText(el, contextLevels), topicKeywords)
}

// ClassifyCategory infers the score category from the text around el.
// Total-score phrases win over section names, and anything unrecognised
// is treated as a total score.
func ClassifyCategory(el Element) Category {
	if el == nil {
		return CategoryTotal
	}
	text := contextText(el, categoryLevels)
	switch {
	case MatchesPattern(text, totalScorePhrases):
		return CategoryTotal
	case strings.Contains(text, "reading"):
		return CategoryReading
	case strings.Contains(text, "math"):
		return CategoryMath
	case strings.Contains(text, "writing"):
		return CategoryWriting
	}
	return CategoryTotal
}

// contextText joins the text of el and up to levels ancestors, lower-cased.
func contextText(el Element, levels int) string {
	var sb strings.Builder
	sb.Grow(builderInitialSize)
	sb.WriteString(el.Text())
	p := el.Parent()
	for i := 0; i < levels && p != nil; i++ {
		sb.WriteByte(' ')
		sb.WriteString(p.Text())
		p = p.Parent()
	}
	return strings.ToLower(sb.String())
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
