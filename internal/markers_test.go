package internal

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestStateOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want VisibilityState
	}{
		{"normal", `<p id="x">1500</p>`, StateNormal},
		{"pre-hidden", `<p id="x" data-temp-hidden="true">1500</p>`, StatePreHidden},
		{"hidden", `<p id="x" class="a sat-score-hidden">1500</p>`, StateHidden},
		{"clickable", `<p id="x" class="sat-score-clickable">1500</p>`, StateHidden},
		{"revealed", `<p id="x" data-revealed="true">1500</p>`, StateRevealed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustParse(t, tt.src)
			if got := StateOf(FindElementByID(doc, "x")); got != tt.want {
				t.Errorf("StateOf() = %v, want %v", got, tt.want)
			}
		})
	}

	if StateOf(nil) != StateNormal {
		t.Error("StateOf(nil) should be normal")
	}
}

func TestClasses(t *testing.T) {
	t.Parallel()

	n := &html.Node{Type: html.ElementNode, Data: "div"}
	AddClass(n, ClassHidden, ClassClickable)
	AddClass(n, ClassHidden)

	if v, _ := GetAttr(n, "class"); v != "sat-score-hidden sat-score-clickable" {
		t.Errorf("class = %q", v)
	}
	if !HasClass(n, ClassClickable) || HasClass(n, "sat-score") {
		t.Error("HasClass() should match whole class names")
	}
}

func TestStyleProperties(t *testing.T) {
	t.Parallel()

	n := &html.Node{Type: html.ElementNode, Data: "div"}
	SetAttr(n, "style", "color: red;VISIBILITY:visible")

	SetStyleProperty(n, "visibility", "hidden")
	SetStyleProperty(n, "opacity", "0")
	if v, _ := GetAttr(n, "style"); v != "color: red; visibility: hidden; opacity: 0;" {
		t.Errorf("style = %q", v)
	}
	if styleProperty(n, "opacity") != "0" {
		t.Error("opacity declaration missing")
	}

	RemoveStyleProperty(n, "visibility", "opacity", "color")
	if _, ok := GetAttr(n, "style"); ok {
		t.Error("empty style attribute should be removed")
	}
}

func TestPreHideRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{"with style", `<p id="x" style="color:red">1500</p>`},
		{"without style", `<p id="x">1500</p>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustParse(t, tt.src)
			n := FindElementByID(doc, "x")
			before := render(t, n)

			snap := PreHide(n)
			if StateOf(n) != StatePreHidden {
				t.Fatalf("state = %v, want pre-hidden", StateOf(n))
			}
			if styleProperty(n, "visibility") != "hidden" || styleProperty(n, "opacity") != "0" {
				v, _ := GetAttr(n, "style")
				t.Fatalf("style = %q", v)
			}

			ClearPreHide(n, &snap)
			if after := render(t, n); after != before {
				t.Errorf("after ClearPreHide = %q, want %q", after, before)
			}
		})
	}
}

func TestClearPreHideWithoutSnapshot(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<p id="x" style="color: red; visibility: hidden; opacity: 0;" data-temp-hidden="true">1</p>`)
	n := FindElementByID(doc, "x")
	ClearPreHide(n, nil)

	if v, _ := GetAttr(n, "style"); v != "color: red;" {
		t.Errorf("style = %q", v)
	}
	if StateOf(n) != StateNormal {
		t.Error("marker should be cleared")
	}
}

func TestBuiltNodes(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	if err := html.Render(&sb, NewPlaceholder()); err != nil {
		t.Fatal(err)
	}
	if sb.String() != `<span class="hidden-score-text">[Click to reveal SAT score]</span>` {
		t.Errorf("placeholder = %q", sb.String())
	}

	btn := NewBigRevealButton()
	if v, _ := GetAttr(btn, "id"); v != BigButtonID {
		t.Errorf("button id = %q", v)
	}
	if text, _ := TextContentLimit(btn, 0); !strings.Contains(text, BigButtonText) {
		t.Errorf("button text = %q", text)
	}
}

func styleProperty(n *html.Node, prop string) string {
	for _, d := range parseStyle(n) {
		if d[0] == prop {
			return d[1]
		}
	}
	return ""
}
