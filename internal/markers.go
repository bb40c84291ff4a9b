package internal

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// VisibilityState is the veil lifecycle state of a page element.
type VisibilityState int

const (
	StateNormal VisibilityState = iota
	StatePreHidden
	StateHidden
	StateRevealed
)

func (s VisibilityState) String() string {
	switch s {
	case StatePreHidden:
		return "pre-hidden"
	case StateHidden:
		return "hidden"
	case StateRevealed:
		return "revealed"
	default:
		return "normal"
	}
}

// StateOf reads the veil state recorded on n.
func StateOf(n *html.Node) VisibilityState {
	if n == nil || n.Type != html.ElementNode {
		return StateNormal
	}
	switch {
	case HasClass(n, ClassHidden) || HasClass(n, ClassClickable):
		return StateHidden
	case HasAttrValue(n, AttrRevealed, "true"):
		return StateRevealed
	case HasAttrValue(n, AttrTempHidden, "true"):
		return StatePreHidden
	}
	return StateNormal
}

// IsInjected reports whether n is a placeholder or the reveal button.
func IsInjected(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if HasAttrValue(n, "id", BigButtonID) {
		return true
	}
	return n.Data == "span" && HasClass(n, ClassHiddenText)
}

func GetAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func HasAttrValue(n *html.Node, key, val string) bool {
	v, ok := GetAttr(n, key)
	return ok && v == val
}

func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func RemoveAttr(n *html.Node, key string) {
	n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool {
		return a.Namespace == "" && a.Key == key
	})
}

// CloneAttrs returns a copy of the attributes of n.
func CloneAttrs(n *html.Node) []html.Attribute {
	return slices.Clone(n.Attr)
}

func HasClass(n *html.Node, class string) bool {
	v, ok := GetAttr(n, "class")
	if !ok {
		return false
	}
	return slices.Contains(strings.Fields(v), class)
}

func AddClass(n *html.Node, classes ...string) {
	v, _ := GetAttr(n, "class")
	fields := strings.Fields(v)
	for _, class := range classes {
		if !slices.Contains(fields, class) {
			fields = append(fields, class)
		}
	}
	SetAttr(n, "class", strings.Join(fields, " "))
}

// SetStyleProperty sets one declaration in the inline style of n, keeping
// the other declarations in place.
func SetStyleProperty(n *html.Node, prop, val string) {
	decls := parseStyle(n)
	for i := range decls {
		if decls[i][0] == prop {
			decls[i][1] = val
			writeStyle(n, decls)
			return
		}
	}
	writeStyle(n, append(decls, [2]string{prop, val}))
}

// RemoveStyleProperty drops a declaration from the inline style of n.
func RemoveStyleProperty(n *html.Node, props ...string) {
	decls := parseStyle(n)
	decls = slices.DeleteFunc(decls, func(d [2]string) bool {
		return slices.Contains(props, d[0])
	})
	writeStyle(n, decls)
}

func parseStyle(n *html.Node) [][2]string {
	v, ok := GetAttr(n, "style")
	if !ok {
		return nil
	}
	var decls [][2]string
	for _, part := range strings.Split(v, ";") {
		prop, val, found := strings.Cut(part, ":")
		if !found {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		decls = append(decls, [2]string{prop, strings.TrimSpace(val)})
	}
	return decls
}

func writeStyle(n *html.Node, decls [][2]string) {
	if len(decls) == 0 {
		RemoveAttr(n, "style")
		return
	}
	var sb strings.Builder
	for i, d := range decls {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(d[0])
		sb.WriteString(": ")
		sb.WriteString(d[1])
		sb.WriteByte(';')
	}
	SetAttr(n, "style", sb.String())
}

// StyleSnapshot records the inline style of an element before the pre-scan
// touched it.
type StyleSnapshot struct {
	Value   string
	Present bool
}

// PreHide makes n invisible without removing it from layout and returns the
// style it had before.
func PreHide(n *html.Node) StyleSnapshot {
	v, ok := GetAttr(n, "style")
	SetStyleProperty(n, "visibility", "hidden")
	SetStyleProperty(n, "opacity", "0")
	SetAttr(n, AttrTempHidden, "true")
	return StyleSnapshot{Value: v, Present: ok}
}

// ClearPreHide undoes PreHide. With no snapshot the visibility and opacity
// declarations are simply dropped.
func ClearPreHide(n *html.Node, snap *StyleSnapshot) {
	RemoveAttr(n, AttrTempHidden)
	switch {
	case snap == nil:
		RemoveStyleProperty(n, "visibility", "opacity")
	case snap.Present:
		SetAttr(n, "style", snap.Value)
	default:
		RemoveAttr(n, "style")
	}
}

// NewPlaceholder builds the span shown in place of a hidden score.
func NewPlaceholder() *html.Node {
	span := &html.Node{
		Type: html.ElementNode,
		Data: "span",
		Attr: []html.Attribute{{Key: "class", Val: ClassHiddenText}},
	}
	span.AppendChild(&html.Node{Type: html.TextNode, Data: PlaceholderText})
	return span
}

// NewBigRevealButton builds the fixed reveal-all button.
func NewBigRevealButton() *html.Node {
	btn := &html.Node{
		Type: html.ElementNode,
		Data: "div",
		Attr: []html.Attribute{
			{Key: "id", Val: BigButtonID},
			{Key: "class", Val: "sat-score-hider-big-reveal-btn"},
			{Key: "style", Val: "position: fixed; top: 20px; right: 20px; z-index: 10000;"},
		},
	}
	content := &html.Node{
		Type: html.ElementNode,
		Data: "div",
		Attr: []html.Attribute{{Key: "class", Val: "big-reveal-content"}},
	}
	icon := &html.Node{
		Type: html.ElementNode,
		Data: "span",
		Attr: []html.Attribute{{Key: "class", Val: "big-reveal-icon"}},
	}
	icon.AppendChild(&html.Node{Type: html.TextNode, Data: "\U0001F3AF"})
	label := &html.Node{
		Type: html.ElementNode,
		Data: "span",
		Attr: []html.Attribute{{Key: "class", Val: "big-reveal-text"}},
	}
	label.AppendChild(&html.Node{Type: html.TextNode, Data: BigButtonText})
	content.AppendChild(icon)
	content.AppendChild(label)
	btn.AppendChild(content)
	return btn
}
