package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/Mohsinsiddi/w3deploy/internal/state"
)

// ActionMsg carries a deploy-flow action into the screen.
type ActionMsg struct{ Action state.Action }

type deployDoneMsg struct{}

type deployTickMsg time.Time

func deploySpinTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return deployTickMsg(t)
	})
}

// DeployModel renders a deployment while it is signed, sent and mined. All
// state changes go through state.Reduce.
type DeployModel struct {
	State    state.State
	Chain    string
	Explorer func(hash string) string

	frame    int
	done     bool
	Quitting bool
}

// NewDeployModel starts the screen from s.
func NewDeployModel(s state.State, chainName string, explorer func(string) string) DeployModel {
	return DeployModel{State: s, Chain: chainName, Explorer: explorer}
}

func (m DeployModel) Init() tea.Cmd { return deploySpinTick() }

func (m DeployModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Quitting = true
			return m, tea.Quit
		}

	case deployTickMsg:
		m.frame = (m.frame + 1) % len(spinnerFrames)
		m.State = state.Reduce(m.State, state.Tick{Now: time.Time(msg)})
		return m, deploySpinTick()

	case ActionMsg:
		m.State = state.Reduce(m.State, msg.Action)

	case deployDoneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m DeployModel) View() string {
	if m.Quitting {
		return ""
	}
	s := m.State
	var sb strings.Builder

	title := fmt.Sprintf("🚀 Deploy %s  ·  %s  ·  %s", s.Template, m.Chain, TruncateAddr(s.Wallet))
	sb.WriteString(StyleTitle.Render(title) + "\n")
	if s.Input != "" {
		sb.WriteString(StyleMeta.Render("  input: ") + StyleValue.Render(s.Input) + "\n")
	}
	sb.WriteString("\n")

	spin := StyleChain.Render(spinnerFrames[m.frame])
	switch s.Phase {
	case state.Idle, state.Editing:
		sb.WriteString(StyleMeta.Render("  ready") + "\n")
	case state.Submitting:
		sb.WriteString(fmt.Sprintf("  %s %s\n", spin, StyleInfo.Render("waiting for wallet approval…")))
	case state.Polling:
		sb.WriteString(fmt.Sprintf("  %s %s %s\n", spin,
			StyleInfo.Render("waiting for confirmation"),
			StyleMeta.Render(fmt.Sprintf("(%d/%d)", s.PollAttempt, config.ReceiptPollMaxAttempts))))
	case state.Confirmed:
		sb.WriteString("  " + Success("deployed") + "\n")
		if c := s.LastDeployed; c != nil {
			sb.WriteString(StyleMeta.Render("  address  ") + Addr(c.Address) + "\n")
			if c.GasSpent != "" {
				sb.WriteString(StyleMeta.Render("  gas      ") + Val(FormatWei(c.GasSpent)+" ETH") + "\n")
			}
		}
	case state.Failed:
		msg := "deployment failed"
		if s.Err != nil {
			msg = s.Err.Error()
		}
		sb.WriteString("  " + Err(msg) + "\n")
	case state.TimedOut:
		sb.WriteString("  " + Warn("still pending after the polling window; it may confirm later") + "\n")
	}

	if s.TxHash != "" {
		tx := s.TxHash
		if m.Explorer != nil {
			tx = m.Explorer(s.TxHash)
		}
		sb.WriteString(StyleMeta.Render("  tx       ") + StyleAddress.Render(tx) + "\n")
	}

	for _, a := range s.Unlocked {
		sb.WriteString("  " + StyleSuccess.Render("★ Achievement unlocked: "+a.Name) + "\n")
	}

	if len(s.Flashes) > 0 {
		sb.WriteString("\n")
		for _, f := range s.Flashes {
			switch f.Level {
			case state.LevelSuccess:
				sb.WriteString("  " + Success(f.Text) + "\n")
			case state.LevelError:
				sb.WriteString("  " + Err(f.Text) + "\n")
			default:
				sb.WriteString("  " + Info(f.Text) + "\n")
			}
		}
	}

	if !m.done {
		sb.WriteString("\n" + StyleMeta.Render("  [ q ] detach") + "\n")
	}
	return sb.String()
}

// RunDeploy shows the screen while run executes. run reports progress through
// dispatch; the screen closes when run returns. The final state is returned.
func RunDeploy(m DeployModel, run func(dispatch func(state.Action))) (state.State, error) {
	p := tea.NewProgram(m)
	go func() {
		run(func(a state.Action) { p.Send(ActionMsg{Action: a}) })
		p.Send(deployDoneMsg{})
	}()
	final, err := p.Run()
	if err != nil {
		return m.State, fmt.Errorf("deploy screen: %w", err)
	}
	return final.(DeployModel).State, nil
}
