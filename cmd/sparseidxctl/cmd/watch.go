package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/myscale/sparse-index/pkg/sparseindex"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch an index's commit activity live",
	RunE: func(c *cobra.Command, args []string) error {
		r, err := sparseindex.LoadIndexReader(indexPath)
		if err != nil {
			return err
		}
		defer r.FreeIndexReader()

		if isatty.IsTerminal(os.Stdout.Fd()) {
			_, err := tea.NewProgram(newWatchModel(r)).Run()
			return err
		}
		return watchPlain(r)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// watchPlain is the non-TTY fallback: print a line only when the
// snapshot's opstamp actually changes, the way a log-following tool would.
func watchPlain(r *sparseindex.Reader) error {
	last := r.Opstamp()
	fmt.Printf("opstamp=%d segments=%d\n", last, r.SegmentCount())
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if current := r.Opstamp(); current != last {
			last = current
			fmt.Printf("opstamp=%d segments=%d\n", last, r.SegmentCount())
		}
	}
	return nil
}

type tickMsg time.Time

type watchModel struct {
	r        *sparseindex.Reader
	spin     spinner.Model
	opstamp  uint64
	segments int
}

func newWatchModel(r *sparseindex.Reader) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	return watchModel{r: r, spin: s, opstamp: r.Opstamp(), segments: r.SegmentCount()}
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(tick(), m.spin.Tick)
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		m.opstamp = m.r.Opstamp()
		m.segments = m.r.SegmentCount()
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	watchValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	watchHintStyle  = lipgloss.NewStyle().Faint(true)
)

func (m watchModel) View() string {
	return fmt.Sprintf(
		"%s %s\n\n  opstamp:  %s\n  segments: %s\n\n%s\n",
		m.spin.View(),
		watchTitleStyle.Render("sparseidxctl watch"),
		watchValueStyle.Render(fmt.Sprintf("%d", m.opstamp)),
		watchValueStyle.Render(fmt.Sprintf("%d", m.segments)),
		watchHintStyle.Render("press q to quit"),
	)
}
