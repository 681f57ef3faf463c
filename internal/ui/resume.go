package ui

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mohsinsiddi/w3deploy/internal/records"
	rsync "github.com/Mohsinsiddi/w3deploy/internal/sync"
)

var (
	resumeCard = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(ColorChain).
			Padding(1, 3)

	tierStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(ColorHighlight).
			Bold(true).
			Padding(0, 1)
)

// ResumeCard renders a wallet's shareable on-chain resume.
func ResumeCard(st rsync.Stats, contracts []records.DeployedContract, referralCode string, now time.Time) string {
	var sb strings.Builder

	sb.WriteString(StyleTitle.Render("On-chain resume") + "\n")
	sb.WriteString(Addr(st.Wallet) + "  " + tierStyle.Render(st.Tier) + "\n\n")

	rank := "-"
	if st.Rank > 0 {
		rank = fmt.Sprintf("#%d", st.Rank)
	}
	gas := st.GasSpentETH
	if st.GasSpentWei != "" {
		gas = FormatWei(st.GasSpentWei) + " ETH"
	}
	if st.MissingGas > 0 {
		gas += StyleMeta.Render(fmt.Sprintf(" (+%d unknown)", st.MissingGas))
	}

	stat := func(label, val string) string {
		return StyleMeta.Render(fmt.Sprintf("%-16s", label)) + StyleValue.Render(val) + "\n"
	}
	sb.WriteString(stat("Contracts", fmt.Sprintf("%d", st.Contracts)))
	sb.WriteString(stat("Gas spent", gas))
	sb.WriteString(stat("Rank", rank))
	sb.WriteString(stat("Referral points", fmt.Sprintf("%d", st.ReferralPoints)))

	if len(st.Achievements) > 0 {
		sb.WriteString("\n" + StyleHeader.Render("Achievements") + "\n")
		for _, a := range st.Achievements {
			sb.WriteString("  " + StyleSuccess.Render("★ "+a.Name) + " " + StyleMeta.Render(a.Description) + "\n")
		}
	}

	if len(contracts) > 0 {
		sorted := append([]records.DeployedContract(nil), contracts...)
		records.SortByTimestamp(sorted)
		sb.WriteString("\n" + StyleHeader.Render("Recent deployments") + "\n")
		for _, c := range sorted[:min(len(sorted), 5)] {
			sb.WriteString(fmt.Sprintf("  %s %s %s\n",
				padR(StyleChain.Render(c.ContractType), 12),
				padR(StyleAddress.Render(TruncateAddr(c.Address)), 14),
				StyleMeta.Render(relTime(c.Time(), now))))
		}
	}

	if referralCode != "" {
		sb.WriteString("\n" + StyleMeta.Render("Invite code ") + StyleWarning.Render(referralCode))
	}
	return resumeCard.Render(sb.String())
}

// FormatWei renders a decimal wei string as ETH with up to six decimals.
// Malformed input is returned unchanged.
func FormatWei(wei string) string {
	n, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return wei
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(n), big.NewFloat(1e18))
	s := f.Text('f', 6)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
