package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/timrc-git/dist-id-shore/idnode"
	"github.com/timrc-git/dist-id-shore/logger"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Start interactive node monitor",
	Long: `Start an interactive terminal UI for running and watching id nodes.

Keyboard shortcuts:
  C - Create a new node (next free node id)
  G - Issue a burst of ids on a node (shows selection menu)
  D - Delete a node (shows selection menu)
  Q - Quit

Examples:
  distid interactive --listen=500ms`,
	Run: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

const burstSize = 1000

// selection modes for the node list
const (
	modeNormal = iota
	modeDelete
	modeBurst
)

type model struct {
	manager   *idnode.Manager
	infos     []idnode.NodeInfo
	mode      int
	selected  int
	creating  bool
	err       error
	logBuffer *logger.LogBuffer
	logScroll int
	width     int
	height    int
}

func initialModel() model {
	// Interactive mode: no stderr output, logs go to the TUI buffer only.
	logBuffer := logger.GetGlobalLogBuffer()
	logger.Init("", false)
	logger.SetDebug(debug)
	logger.AddOutput(logger.NewLogBufferWriter(logBuffer))

	return model{
		manager:   idnode.NewManager(nodeConfig()),
		logBuffer: logBuffer,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tick(), refreshNodes(m.manager))
}

type tickMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type nodesUpdatedMsg struct {
	infos []idnode.NodeInfo
}

func refreshNodes(manager *idnode.Manager) tea.Cmd {
	return func() tea.Msg {
		return nodesUpdatedMsg{infos: manager.Snapshots()}
	}
}

type nodeCreatedMsg struct {
	id  uint16
	err error
}

// createNode initializes a node off the UI loop; the listen window blocks
// for the configured duration.
func createNode(manager *idnode.Manager) tea.Cmd {
	return func() tea.Msg {
		id, err := manager.CreateNode()
		return nodeCreatedMsg{id: id, err: err}
	}
}

type burstDoneMsg struct {
	index       int
	first, last uint64
	err         error
}

func issueBurst(manager *idnode.Manager, index int) tea.Cmd {
	return func() tea.Msg {
		first, last, err := manager.IssueBurst(index, burstSize)
		return burstDoneMsg{index: index, first: first, last: last, err: err}
	}
}

type shutdownCompleteMsg struct{}

func shutdownNodes(manager *idnode.Manager) tea.Cmd {
	return func() tea.Msg {
		manager.StopAll()
		return shutdownCompleteMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, shutdownNodes(m.manager)
		}
		if m.mode != modeNormal {
			return m.handleSelectMode(msg)
		}

		switch msg.String() {
		case "c", "C":
			if m.creating {
				m.err = fmt.Errorf("node creation already in progress")
				return m, nil
			}
			m.creating = true
			m.err = nil
			return m, createNode(m.manager)

		case "g", "G":
			if len(m.infos) == 0 {
				m.err = fmt.Errorf("no nodes to issue from")
				return m, nil
			}
			m.mode = modeBurst
			m.selected = 0
			return m, nil

		case "d", "D":
			if len(m.infos) == 0 {
				m.err = fmt.Errorf("no nodes to delete")
				return m, nil
			}
			m.mode = modeDelete
			m.selected = 0
			return m, nil

		case "up", "k":
			maxScroll := len(m.logBuffer.GetAll()) - logLines
			if maxScroll < 0 {
				maxScroll = 0
			}
			if m.logScroll < maxScroll {
				m.logScroll++
			}
			return m, nil

		case "down", "j":
			if m.logScroll > 0 {
				m.logScroll--
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(tick(), refreshNodes(m.manager))

	case nodesUpdatedMsg:
		m.infos = msg.infos
		return m, nil

	case nodeCreatedMsg:
		m.creating = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			logger.Infof("node %04d: created and announced", msg.id)
		}
		return m, refreshNodes(m.manager)

	case burstDoneMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			logger.Infof("burst of %d ids: %x .. %x", burstSize, msg.first, msg.last)
		}
		return m, refreshNodes(m.manager)

	case shutdownCompleteMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m model) handleSelectMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNormal
		m.selected = 0
		m.err = nil
		return m, nil

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "down", "j":
		if m.selected < len(m.infos)-1 {
			m.selected++
		}
		return m, nil

	case "enter", " ":
		index := m.selected
		mode := m.mode
		m.mode = modeNormal
		m.selected = 0
		if mode == modeDelete {
			if err := m.manager.DeleteNode(index); err != nil {
				m.err = err
				return m, nil
			}
			m.err = nil
			return m, refreshNodes(m.manager)
		}
		return m, issueBurst(m.manager, index)
	}
	return m, nil
}

const logLines = 15

func (m model) View() string {
	var s strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Padding(1, 2)
	s.WriteString(titleStyle.Render("DistId Node Monitor"))
	s.WriteString("\n\n")

	if m.err != nil {
		errorStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	if m.creating {
		s.WriteString("Creating node (listen window)...\n\n")
	}

	if len(m.infos) == 0 {
		s.WriteString("No nodes running.\n\n")
	} else {
		s.WriteString("Running Nodes:\n\n")
		for i, info := range m.infos {
			status := "valid"
			if info.Collision {
				status = "COLLISION"
			} else if !info.Valid {
				status = "invalid"
			}
			peers := len(m.manager.PeerStates(i))
			line := fmt.Sprintf("[%d]   node %04d  port %-5d  high-water %012x  peers %-3d  %s",
				i+1, info.ID, info.Port, info.HighWater, peers, status)
			if m.mode != modeNormal && i == m.selected {
				selStyle := lipgloss.NewStyle().
					PaddingLeft(2).
					Foreground(lipgloss.Color("196")).
					Bold(true)
				s.WriteString(selStyle.Render("> " + line))
			} else {
				s.WriteString("  " + line)
			}
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	s.WriteString(m.renderLogs())
	s.WriteString("\n\n")

	instructionsStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true).
		PaddingTop(1)

	switch m.mode {
	case modeDelete:
		s.WriteString(instructionsStyle.Render("DELETE: ↑/↓/j/k to select, Enter to confirm, Esc to cancel"))
	case modeBurst:
		s.WriteString(instructionsStyle.Render(fmt.Sprintf("BURST: ↑/↓/j/k to select, Enter to issue %d ids, Esc to cancel", burstSize)))
	default:
		s.WriteString(instructionsStyle.Render("C create | G issue burst | D delete | ↑/↓/j/k scroll logs | Q quit"))
	}

	return s.String()
}

func (m model) renderLogs() string {
	entries := m.logBuffer.GetAll()

	var lines []string
	if len(entries) == 0 {
		lines = []string{"(no logs yet)"}
	} else {
		end := len(entries) - m.logScroll
		if end < 0 {
			end = 0
		}
		start := end - logLines
		if start < 0 {
			start = 0
		}
		// newest first
		for i := end - 1; i >= start; i-- {
			lines = append(lines, logger.FormatLogEntry(entries[i]))
		}
	}

	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4
	}
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Height(logLines + 1).
		Width(boxWidth)

	return logStyle.Render("Logs:\n" + strings.Join(lines, "\n"))
}

func runInteractive(cmd *cobra.Command, args []string) {
	p := tea.NewProgram(initialModel())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running interactive mode: %v\n", err)
	}
}
