package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/grafana/netverify/pkg/probe"
	"github.com/grafana/netverify/pkg/targets"
)

const listHeight = 14

var (
	titleStyle        = lipgloss.NewStyle().MarginLeft(2)
	itemStyle         = lipgloss.NewStyle().PaddingLeft(4)
	selectedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("170"))
	passStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle       = lipgloss.NewStyle().PaddingLeft(4)
	paginationStyle   = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle         = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	quitTextStyle     = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

// ProbeFunc probes a single target. *probe.Prober's Probe method is one.
type ProbeFunc func(context.Context, probe.Target) probe.Outcome

type item struct {
	entry   targets.Entry
	outcome *probe.Outcome
}

func (i item) FilterValue() string { return i.entry.Name }

func verdict(o probe.Outcome) string {
	if o.Passed() {
		return passStyle.Render("[PASS] " + o.Classification())
	}
	return failStyle.Render("[FAIL] " + o.Classification())
}

type itemDelegate struct{}

func (d itemDelegate) Height() int                             { return 1 }
func (d itemDelegate) Spacing() int                            { return 0 }
func (d itemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(item)
	if !ok {
		return
	}

	str := fmt.Sprintf("%d. %s", index+1, i.entry.Name)
	if i.outcome != nil {
		str += "  " + verdict(*i.outcome)
	}

	fn := itemStyle.Render
	if index == m.Index() {
		fn = func(s ...string) string {
			return selectedItemStyle.Render("> " + strings.Join(s, " "))
		}
	}

	fmt.Fprint(w, fn(str))
}

type resultMsg struct {
	index   int
	outcome probe.Outcome
}

type model struct {
	ctx     context.Context
	probe   ProbeFunc
	list    list.Model
	running bool
	status  string
	quit    bool
}

func newModel(ctx context.Context, entries []targets.Entry, fn ProbeFunc) model {
	items := make([]list.Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, item{entry: e})
	}

	const defaultWidth = 40

	l := list.New(items, itemDelegate{}, defaultWidth, listHeight)
	l.Title = "Pick a target to probe:"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle

	return model{ctx: ctx, probe: fn, list: l}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) run(index int, t probe.Target) tea.Cmd {
	return func() tea.Msg {
		return resultMsg{index: index, outcome: m.probe(m.ctx, t)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil

	case resultMsg:
		m.running = false
		it, ok := m.list.Items()[msg.index].(item)
		if !ok {
			return m, nil
		}
		it.outcome = &msg.outcome
		m.status = fmt.Sprintf("%s: %s", it.entry.Name, verdict(msg.outcome))
		return m, m.list.SetItem(msg.index, it)

	case tea.KeyMsg:
		switch keypress := msg.String(); keypress {
		case "q", "ctrl+c":
			m.quit = true
			return m, tea.Quit

		case "enter":
			if m.running {
				return m, nil
			}
			i, ok := m.list.SelectedItem().(item)
			if !ok {
				return m, nil
			}
			m.running = true
			m.status = "probing " + i.entry.Target.Addr() + "..."
			return m, m.run(m.list.Index(), i.entry.Target)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.quit {
		return quitTextStyle.Render("Done probing.")
	}

	v := "\n" + m.list.View()
	if m.status != "" {
		v += "\n" + statusStyle.Render(m.status)
	}
	return v
}

// Run shows the picker until the user quits or ctx is done.
func Run(ctx context.Context, entries []targets.Entry, fn ProbeFunc) error {
	p := tea.NewProgram(newModel(ctx, entries, fn), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running interactive mode: %w", err)
	}
	return nil
}
