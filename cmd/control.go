package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/filipezaidan/google-meet-captions/internal/daemon"
	"github.com/filipezaidan/google-meet-captions/internal/export"
	"github.com/spf13/cobra"
)

var errDaemonNotRunning = errors.New("daemon not running")

func connect(app *app) (*daemon.Client, error) {
	client, err := daemon.Connect(app.cfg.Socket)
	if err != nil {
		return nil, fmt.Errorf("%w at %s (start it with `captions daemon`): %v", errDaemonNotRunning, app.cfg.Socket, err)
	}
	return client, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStartCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start recording the captions of the connected meeting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect(app)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Start()
			if err != nil {
				return err
			}
			if !resp.Success {
				return errors.New(resp.Message)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Message, resp.SessionID)
			return err
		},
	}
}

func newStopCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop recording and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect(app)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Stop()
			if err != nil {
				return err
			}
			if !resp.Success {
				return errors.New(resp.Message)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s records)\n", resp.Message, humanize.Comma(int64(resp.RecordCount)))
			return err
		},
	}
}

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is recording",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := connect(app)
			if err != nil {
				return err
			}
			defer client.Close()

			st, err := client.Status()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}

			out := cmd.OutOrStdout()
			state := "idle"
			if st.IsRecording {
				state = "recording"
			}
			if _, err := fmt.Fprintf(out, "state: %s\n", state); err != nil {
				return err
			}
			if st.Session != nil {
				_, err = fmt.Fprintf(out, "session: %s\nrecords: %s\nupdated: %s\n",
					st.Session.SessionID,
					humanize.Comma(int64(st.Session.RecordCount)),
					humanize.RelTime(st.Session.Updated, app.now(), "ago", "from now"))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status response")
	return cmd
}

// listSessions asks the daemon, falling back to reading the database
// directly when no daemon is running.
func listSessions(cmd *cobra.Command, app *app) ([]caption.Summary, error) {
	if client, err := connect(app); err == nil {
		defer client.Close()
		return client.ListSessions()
	}

	store, err := openReadOnly(app.cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List(cmd.Context())
}

func loadSession(cmd *cobra.Command, app *app, id string) (*caption.Session, error) {
	if client, err := connect(app); err == nil {
		defer client.Close()
		return client.GetSession(id)
	}

	store, err := openReadOnly(app.cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(cmd.Context(), id)
}

func newSessionsCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sums, err := listSessions(cmd, app)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), sums)
			}
			if len(sums) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No sessions recorded yet.")
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tRECORDS\tSTARTED\tUPDATED")
			now := app.now()
			for _, s := range sums {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					s.SessionID,
					humanize.Comma(int64(s.RecordCount)),
					s.Started.Local().Format("2006-01-02 15:04"),
					humanize.RelTime(s.Updated, now, "ago", "from now"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print session summaries as JSON")
	return cmd
}

func newShowCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSession(cmd, app, args[0])
			if err != nil {
				return fmt.Errorf("load session %s: %w", args[0], err)
			}
			if asJSON {
				data, err := export.Marshal(s.Records)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), export.Transcript(s))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the records as exported JSON")
	return cmd
}

func newExportCmd(app *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Write a session's records to <session-id>.json",
		Long:  "Without --dir the daemon writes the file into the configured export directory. With --dir the session is read from the database and written there directly.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if dir == "" {
				client, err := connect(app)
				if err != nil {
					return err
				}
				defer client.Close()

				res, err := client.DownloadSession(id)
				if err != nil {
					return err
				}
				if !res.Success {
					return errors.New(res.Message)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", id, res.Path)
				return err
			}

			s, err := loadSession(cmd, app, id)
			if err != nil {
				return fmt.Errorf("load session %s: %w", id, err)
			}
			path, err := export.WriteFile(dir, s)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", id, path)
			return err
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Write the file into this directory instead of asking the daemon")
	return cmd
}
