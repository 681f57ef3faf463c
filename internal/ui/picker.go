package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// PickerItem is one entry shown in the interactive picker.
type PickerItem struct {
	Label    string
	SubLabel string // shown dimmed
	Value    string // returned on selection
	Current  bool   // starts under the cursor and is tagged
}

type pickerModel struct {
	title  string
	items  []PickerItem
	cursor int
	picked string
	done   bool
}

func newPickerModel(title string, items []PickerItem) pickerModel {
	m := pickerModel{title: title, items: items}
	for i, it := range items {
		if it.Current {
			m.cursor = i
			break
		}
	}
	return m
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch s := key.String(); s {
	case "q", "ctrl+c", "esc":
		m.done = true
		return m, tea.Quit
	case "up", "k":
		m.cursor = (m.cursor - 1 + len(m.items)) % len(m.items)
	case "down", "j", "tab":
		m.cursor = (m.cursor + 1) % len(m.items)
	case "enter", " ":
		m.picked, m.done = m.items[m.cursor].Value, true
		return m, tea.Quit
	default:
		// 1-9 jump straight to an item.
		if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(m.items) {
			m.cursor = n - 1
			m.picked, m.done = m.items[m.cursor].Value, true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.done {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n" + StyleTitle.Render("  "+m.title) + "\n\n")
	for i, it := range m.items {
		num := "   "
		if i < 9 {
			num = fmt.Sprintf("%d. ", i+1)
		}
		line := num + StyleValue.Render(it.Label)
		if it.SubLabel != "" {
			line += "  " + StyleMeta.Render(it.SubLabel)
		}
		if it.Current {
			line += " " + StyleSuccess.Render("(current)")
		}
		if i == m.cursor {
			sb.WriteString(StyleSelected.Render("▸ "+line) + "\n")
		} else {
			sb.WriteString("  " + line + "\n")
		}
	}
	sb.WriteString("\n" + StyleMeta.Render("  ↑↓ move · 1-9 or enter select · q cancel") + "\n")
	return sb.String()
}

// PickItem runs the picker and returns the chosen Value, or "" when the user
// cancels.
func PickItem(title string, items []PickerItem) (string, error) {
	if len(items) == 0 {
		return "", errors.New("nothing to pick from")
	}
	final, err := tea.NewProgram(newPickerModel(title, items), tea.WithAltScreen()).Run()
	if err != nil {
		return "", fmt.Errorf("picker: %w", err)
	}
	return final.(pickerModel).picked, nil
}
