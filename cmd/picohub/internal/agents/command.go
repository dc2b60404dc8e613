package agents

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sipeed/picohub/cmd/picohub/internal"
	"github.com/sipeed/picohub/pkg/hub"
	"github.com/sipeed/picohub/pkg/store"
)

func NewAgentsCommand() *cobra.Command {
	var storePath string

	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"a"},
		Short:   "List agents in the persisted snapshot",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if storePath == "" {
				cfg, err := internal.LoadConfig()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				storePath = cfg.Store.Path
			}
			records, err := store.NewFileStore(storePath).Read()
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			return printAgents(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "Snapshot file (defaults to store.path from config)")

	return cmd
}

func printAgents(w io.Writer, records map[string]hub.AgentRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No agents")
		return err
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := records[ids[i]], records[ids[j]]
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return ids[i] < ids[j]
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPENDING\tLAST SEEN")
	for _, id := range ids {
		rec := records[id]
		lastSeen := "--"
		if !rec.LastSeen.IsZero() {
			lastSeen = rec.LastSeen.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", id, rec.Status(), len(rec.Pending), lastSeen)
	}
	return tw.Flush()
}
