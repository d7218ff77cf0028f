package cmd

import (
	"errors"
	"io/fs"
	"os"

	"github.com/filipezaidan/google-meet-captions/internal/db"
	"github.com/filipezaidan/google-meet-captions/internal/mcpserver"
	"github.com/spf13/cobra"
)

func newMCPCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve recorded sessions to an MCP client over stdio",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := openReadOnly(app.cfg.DB.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			return mcpserver.Serve(mcpserver.New(store, app.cfg.Export.Dir))
		},
	}
}

// openReadOnly opens path read-only, creating an empty database first when
// none exists yet.
func openReadOnly(path string) (*db.Store, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		s, err := db.Open(path)
		if err != nil {
			return nil, err
		}
		if err := s.Close(); err != nil {
			return nil, err
		}
	}
	return db.OpenReadOnly(path)
}
