package scorehider_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cybergodev/scorehider"
	"golang.org/x/net/html"
)

var epoch = time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)

// recordingSink keeps every plan it receives.
type recordingSink struct {
	mu    sync.Mutex
	plans []*scorehider.EffectPlan
}

func (r *recordingSink) Emit(_ context.Context, plan *scorehider.EffectPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, plan)
	return nil
}

func (r *recordingSink) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plans)
}

func (r *recordingSink) Tiers() []scorehider.Tier {
	r.mu.Lock()
	defer r.mu.Unlock()
	tiers := make([]scorehider.Tier, len(r.plans))
	for i, p := range r.plans {
		tiers[i] = p.Tier
	}
	return tiers
}

// newInlineReactor delivers plans on the calling goroutine so tests can
// count them without waiting.
func newInlineReactor(clock scorehider.Clock, sink scorehider.EffectSink) *scorehider.Reactor {
	return scorehider.NewReactor(scorehider.ReactorOptions{
		Sink:      sink,
		Clock:     clock,
		QueueSize: -1,
		Seed:      7,
	})
}

func newSession(t *testing.T, markup string, reactor *scorehider.Reactor) *scorehider.Session {
	t.Helper()
	s, err := scorehider.ParseSession(markup, scorehider.SessionOptions{Reactor: reactor})
	if err != nil {
		t.Fatalf("ParseSession() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func renderNode(t *testing.T, n *html.Node) string {
	t.Helper()
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return sb.String()
}

func mustHTML(t *testing.T, s *scorehider.Session) string {
	t.Helper()
	out, err := s.HTML()
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	return out
}

func withoutAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			attrs = append(attrs, a)
		}
	}
	n.Attr = attrs
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
