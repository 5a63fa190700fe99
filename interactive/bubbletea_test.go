package interactive

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/grafana/netverify/pkg/probe"
	"github.com/grafana/netverify/pkg/targets"
)

func testEntries() []targets.Entry {
	return []targets.Entry{
		{Name: "redis sidecar", Target: probe.Target{Kind: probe.KindSidecar, Host: "redis", Port: 6379, Expect: probe.MustConnect()}},
		{Name: "google dns", Target: probe.Target{Kind: probe.KindExternalIP, Host: "8.8.8.8", Port: 443, Expect: probe.MustBlock()}},
	}
}

func TestModel(t *testing.T) {
	var probed []probe.Target
	fn := func(_ context.Context, t probe.Target) probe.Outcome {
		probed = append(probed, t)
		return probe.Outcome{Target: t, State: probe.StateSinkholeBlocked, Err: probe.ErrSinkhole}
	}

	m := newModel(t.Context(), testEntries(), fn)

	// move to the second entry and select it
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expecting a probe command")
	}
	if !next.(model).running {
		t.Fatal("expecting model to be running")
	}

	// a second enter while running is ignored
	if _, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatal("expecting no command while a probe is running")
	}

	msg := cmd()
	res, ok := msg.(resultMsg)
	if !ok {
		t.Fatalf("expecting resultMsg, got %T", msg)
	}
	if e, g := 1, res.index; e != g {
		t.Fatalf("expecting result for entry %d, got %d", e, g)
	}
	if e, g := "8.8.8.8", probed[0].Host; len(probed) != 1 || e != g {
		t.Fatalf("expecting a single probe of %s, got %v", e, probed)
	}

	next, _ = next.Update(res)
	got := next.(model)
	if got.running {
		t.Fatal("expecting model to stop running")
	}
	if !strings.Contains(got.View(), "[PASS] BLOCKED (sinkhole)") {
		t.Fatalf("expecting verdict in view, got:\n%s", got.View())
	}
}

func TestModel_Quit(t *testing.T) {
	m := newModel(t.Context(), testEntries(), nil)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expecting quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expecting tea.QuitMsg")
	}
	if !next.(model).quit {
		t.Fatal("expecting model to quit")
	}
}
