package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mohsinsiddi/w3deploy/internal/records"
)

// ContractLinks holds the per-row data behind the o/c shortcuts.
type ContractLinks struct {
	Address     string // full 0x... address (for copy)
	ExplorerURL string // e.g. https://basescan.org/address/0x...
}

// HistoryTable renders deployed contracts newest first.
func HistoryTable(cs []records.DeployedContract) *Table {
	t := NewTable([]Column{
		{Title: "Deployed", Width: 16},
		{Title: "Template", Width: 12},
		{Title: "Address", Width: 14},
		{Title: "Input", Width: 18},
		{Title: "Gas (ETH)", Width: 12, Right: true},
	})
	sorted := append([]records.DeployedContract(nil), cs...)
	records.SortByTimestamp(sorted)
	for _, c := range sorted {
		t.AddRow(Row{
			c.Time().Local().Format("2006-01-02 15:04"),
			c.ContractType,
			TruncateAddr(c.Address),
			c.InputValue,
			gasETH(c.GasSpent),
		})
	}
	return t
}

// historyModel is the bubbletea model for the interactive contract table.
type historyModel struct {
	title  string
	table  *Table
	links  []ContractLinks // parallel to table.Rows
	cursor int
	flash  string // brief feedback shown in hint bar
}

func (m historyModel) Init() tea.Cmd { return nil }

func (m historyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.flash = ""
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.table.Rows)-1 {
				m.cursor++
			}

		case "o":
			if m.cursor < len(m.links) {
				url := m.links[m.cursor].ExplorerURL
				if url != "" {
					openBrowser(url)
					m.flash = "Opening in browser…"
				} else {
					m.flash = "No explorer URL available"
				}
			}

		case "c":
			if m.cursor < len(m.links) {
				addr := m.links[m.cursor].Address
				if addr == "" {
					m.flash = "No address available"
					break
				}
				if err := copyToClipboard(addr); err == nil {
					m.flash = "Copied: " + TruncateAddr(addr)
				} else {
					m.flash = "Copy failed: " + err.Error()
				}
			}
		}
	}
	return m, nil
}

func (m historyModel) View() string {
	m.table.SelIdx = m.cursor

	var sb strings.Builder
	sb.WriteString(m.title)
	sb.WriteString("\n\n")
	sb.WriteString(m.table.Render())

	sb.WriteString("\n")
	if m.flash != "" {
		sb.WriteString(StyleSuccess.Render("  ✓ " + m.flash))
	} else {
		sb.WriteString(historyControls())
	}
	sb.WriteString("\n")
	return sb.String()
}

func historyControls() string {
	sep := StyleMeta.Render("   ")
	var sb strings.Builder
	sb.WriteString(StyleMeta.Render("[ ↑↓ ]"))
	sb.WriteString(StyleMeta.Render(" navigate"))
	sb.WriteString(sep)
	sb.WriteString(StyleInfo.Render("[ o ]"))
	sb.WriteString(StyleMeta.Render(" open in explorer"))
	sb.WriteString(sep)
	sb.WriteString(StyleWarning.Render("[ c ]"))
	sb.WriteString(StyleMeta.Render(" copy address"))
	sb.WriteString(sep)
	sb.WriteString(StyleMeta.Render("[ q ]"))
	sb.WriteString(StyleMeta.Render(" quit"))
	return sb.String()
}

// RunHistory starts the interactive contract list. Blocks until the user
// presses q/ESC. explorer maps an address to its explorer page.
func RunHistory(title string, cs []records.DeployedContract, explorer func(addr string) string) error {
	sorted := append([]records.DeployedContract(nil), cs...)
	records.SortByTimestamp(sorted)
	links := make([]ContractLinks, len(sorted))
	for i, c := range sorted {
		links[i] = ContractLinks{Address: c.Address}
		if explorer != nil {
			links[i].ExplorerURL = explorer(c.Address)
		}
	}
	m := historyModel{title: title, table: HistoryTable(sorted), links: links}
	p := tea.NewProgram(m, tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func gasETH(wei string) string {
	if wei == "" {
		return "-"
	}
	return FormatWei(wei)
}

// openBrowser opens url in the OS default browser.
func openBrowser(url string) {
	var name string
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		name = "cmd"
	default:
		name = "xdg-open"
	}
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command(name, "/c", "start", url)
	} else {
		cmd = exec.Command(name, url)
	}
	_ = cmd.Start()
}

// copyToClipboard writes text to the system clipboard.
func copyToClipboard(text string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "windows":
		cmd = exec.Command("clip")
	default:
		// Try wl-copy (Wayland), fall back to xclip.
		if _, err := exec.LookPath("wl-copy"); err == nil {
			cmd = exec.Command("wl-copy")
		} else {
			cmd = exec.Command("xclip", "-selection", "clipboard")
		}
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	_, _ = io.WriteString(stdin, text)
	stdin.Close()
	return cmd.Wait()
}

// relTime renders a short "3m ago" style age.
func relTime(ts, now time.Time) string {
	d := now.Sub(ts)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}
