package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/filipezaidan/google-meet-captions/internal/db"
	"github.com/filipezaidan/google-meet-captions/internal/export"
	"github.com/filipezaidan/google-meet-captions/internal/page"
	"github.com/filipezaidan/google-meet-captions/internal/recorder"
	"github.com/spf13/cobra"
)

type replayOptions struct {
	save   bool
	outDir string
	asJSON bool
}

func newReplayCmd(app *app) *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay <file>",
		Short: "Record a session from a captured observer stream",
		Long: `Feed a JSON array of observer messages through the recorder as if a meeting tab had sent them, then print the resulting transcript.

Each element has the shape the page hub accepts, optionally stamped with the time it was observed:

  [{"type":"hello","url":"https://meet.google.com/abc-defg-hij"},
   {"type":"region","at":"2026-04-01T12:00:00Z","attrs":{"role":"region","aria-label":"Captions"},"children":[{"handle":"c1","text":"Alice\nHello"}]}]

Recording starts at the first message that exposes a caption region and every later message is reconciled immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := readReplay(args[0])
			if err != nil {
				return err
			}

			s, err := replay(cmd.Context(), app, msgs, opts.save)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.outDir != "" {
				path, err := export.WriteFile(opts.outDir, s)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", s.SessionID, path); err != nil {
					return err
				}
			}
			if opts.asJSON {
				data, err := export.Marshal(s.Records)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}
			_, err = fmt.Fprint(out, export.Transcript(s))
			return err
		},
	}
	cmd.Flags().BoolVar(&opts.save, "save", false, "Keep the session in the configured database")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "Also write <session-id>.json into this directory")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the records as exported JSON")
	return cmd
}

func readReplay(path string) ([]page.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	var msgs []page.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse replay file %s: %w", path, err)
	}
	return msgs, nil
}

// replayClock hands the engine the timestamp of the message being replayed.
// Unstamped messages keep the previous time.
type replayClock struct {
	t time.Time
}

func (c *replayClock) Now() time.Time { return c.t }

func (c *replayClock) observe(msg page.Message) {
	if !msg.At.IsZero() {
		c.t = msg.At
	}
}

func replay(ctx context.Context, app *app, msgs []page.Message, save bool) (*caption.Session, error) {
	dbPath := db.MemoryPath
	if save {
		dbPath = app.cfg.DB.Path
	}

	cfg := app.cfg.Recorder()
	// Passes are driven by Flush, one per message.
	cfg.Debounce = time.Hour
	cfg.BackupInterval = time.Hour

	clock := &replayClock{t: app.now()}
	p := page.NewPage("")
	engine := recorder.New(p, storeOpener(dbPath),
		recorder.WithConfig(cfg),
		recorder.WithClock(clock.Now),
		recorder.WithLogger(app.log),
	)
	defer engine.Close(context.Background())

	recording := false
	for i, msg := range msgs {
		clock.observe(msg)
		page.Apply(p, msg)

		if recording {
			engine.Flush()
			continue
		}
		if _, err := engine.Start(ctx); err != nil {
			if errors.Is(err, recorder.ErrContainerNotFound) {
				continue
			}
			return nil, fmt.Errorf("start recording at message %d: %w", i, err)
		}
		recording = true
		engine.Flush()
	}
	if !recording {
		return nil, errors.New("replay never exposed a caption region")
	}

	res := engine.Stop(ctx)
	if res.SaveErr != nil {
		return nil, fmt.Errorf("save replayed session: %w", res.SaveErr)
	}
	return engine.Session(ctx, res.SessionID)
}
