package scorehider

import (
	"container/heap"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"
)

var epochInternal = time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)

func TestGuardRecoversElementPanic(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.ErrorLevel)
	metrics := NewMetrics(prometheus.NewRegistry())
	s, err := ParseSession(`<html><body><p>x</p></body></html>`, SessionOptions{
		Logger:  zap.New(core),
		Metrics: metrics,
	})
	if err != nil {
		t.Fatal(err)
	}

	n := &html.Node{Type: html.ElementNode, Data: "p"}
	if s.guard(n, "scan", func() { panic("broken element") }) {
		t.Error("guard() reported success for a panicking element")
	}
	if !s.guard(n, "scan", func() {}) {
		t.Error("guard() reported failure for a healthy element")
	}

	entries := logs.FilterMessage("element processing failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d failure logs, want 1", len(entries))
	}
	if tag := entries[0].ContextMap()["tag"]; tag != "p" {
		t.Errorf("logged tag = %v, want p", tag)
	}
	if got := testutil.ToFloat64(metrics.ElementFailures); got != 1 {
		t.Errorf("element failures = %v, want 1", got)
	}
}

func TestSchedulerTimerOrder(t *testing.T) {
	t.Parallel()

	clock := NewManualClock(epochInternal)
	s, _ := ParseSession(`<html><body></body></html>`, SessionOptions{})
	sched := NewScheduler(s, SchedulerOptions{Clock: clock})

	sched.schedule(DefaultFollowUpDelay, timerFollowUp, "")
	sched.schedule(DefaultScanInterval, timerPeriodic, "")
	sched.schedule(DefaultFollowUpDelay, timerDemo, "1500")

	var kinds []timerKind
	for sched.timers.Len() > 0 {
		kinds = append(kinds, heap.Pop(&sched.timers).(*timer).kind)
	}
	want := []timerKind{timerFollowUp, timerDemo, timerPeriodic}
	if len(kinds) != len(want) {
		t.Fatalf("timer kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("timer %d = %v, want %v", i, kinds[i], want[i])
		}
	}
}
