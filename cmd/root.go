package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "captions",
		Short:         "Record meeting captions into local transcripts",
		Long:          "captions runs a local daemon that follows the live caption region of a meeting tab, turns each speaker turn into a transcript record, and keeps sessions in a SQLite database you can browse, export and query.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		// Writing a fresh config must work even when the current one is broken.
		rootCmd.AddCommand(newConfigCmd())
		return rootCmd
	}

	rootCmd.AddCommand(
		newDaemonCmd(app),
		newTUICmd(app),
		newMCPCmd(app),
		newStartCmd(app),
		newStopCmd(app),
		newStatusCmd(app),
		newSessionsCmd(app),
		newShowCmd(app),
		newExportCmd(app),
		newConfigCmd(),
		newReplayCmd(app),
	)

	return rootCmd
}
