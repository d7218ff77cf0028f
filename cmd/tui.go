package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	appui "github.com/filipezaidan/google-meet-captions/internal/app"
	"github.com/spf13/cobra"
)

func newTUICmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive control panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := tea.NewProgram(appui.New(app.cfg.Socket),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			_, err := p.Run()
			return err
		},
	}
}
