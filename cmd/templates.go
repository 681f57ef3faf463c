package cmd

import (
	"fmt"

	"github.com/Mohsinsiddi/w3deploy/internal/contract"
	"github.com/Mohsinsiddi/w3deploy/internal/ui"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the contract templates you can deploy",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(templatesTable().Render())
		fmt.Println(ui.Hint("Deploy one with: w3deploy deploy <id> [--input <value>]"))
		return nil
	},
}

func templatesTable() *ui.Table {
	t := ui.NewTable([]ui.Column{
		{Title: "ID", Width: 12},
		{Title: "Name", Width: 16},
		{Title: "Input", Width: 8},
		{Title: "Description", Width: 40},
	})
	for _, tpl := range contract.All() {
		t.AddRow(ui.Row{
			ui.Val(tpl.ID),
			tpl.Name,
			ui.Meta(tpl.Input.Kind()),
			tpl.Description,
		})
	}
	return t
}

// templateItems feeds the interactive picker.
func templateItems() []ui.PickerItem {
	all := contract.All()
	items := make([]ui.PickerItem, 0, len(all))
	for _, tpl := range all {
		sub := tpl.Description
		if tpl.HasInput() {
			sub = fmt.Sprintf("%s (%s)", sub, tpl.Label())
		}
		items = append(items, ui.PickerItem{Label: tpl.Name, SubLabel: sub, Value: tpl.ID})
	}
	return items
}
