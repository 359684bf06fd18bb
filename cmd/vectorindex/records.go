package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/vectorindex/internal/vectorindex"
)

func newAddCmd(g *globals) *cobra.Command {
	var (
		table string
		ids   []string
	)
	cmd := &cobra.Command{
		Use:   "add [text...]",
		Short: "Embed texts and store them as records",
		Long: `Embed each argument, or each non-empty stdin line when no arguments are
given, and store it with its text under the "content" metadata key. The batch
is all-or-nothing.

Examples:
  vectorindex add "the cat sat on the mat" "dogs chase cats"
  cat notes.txt | vectorindex add --table notes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			texts := args
			if len(texts) == 0 {
				var err error
				if texts, err = readLines(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if len(texts) == 0 {
				return errors.New("no texts given")
			}
			if len(ids) > 0 && len(ids) != len(texts) {
				return fmt.Errorf("got %d ids for %d texts", len(ids), len(texts))
			}
			docs := make([]vectorindex.Document, len(texts))
			for i, t := range texts {
				docs[i] = vectorindex.Document{Content: t}
				if len(ids) > 0 {
					docs[i].ID = ids[i]
				}
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()
			if table == "" {
				table = a.index.Table()
			}
			if err := a.index.EnsureIndex(ctx, table); err != nil {
				return err
			}
			out, err := a.index.AddDocuments(ctx, table, docs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"ids": out})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "target table (default: the index table)")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "record ids, one per text (default: generated)")
	return cmd
}

func newGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a record of the index table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()
			rec, err := a.index.ReadVector(ctx, args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("record %q not found in %s", args[0], a.index.Table())
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newDeleteCmd(g *globals) *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete records",
		Long: `Delete records by id. Several ids are deleted as one all-or-nothing batch;
if any id is missing nothing is deleted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.Close()
			if table == "" {
				table = a.index.Table()
			}
			if len(args) == 1 {
				err = a.index.DeleteEmbedding(ctx, args[0], table)
			} else {
				err = a.index.DeleteBatch(ctx, args, table)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"deleted": args})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "table to delete from (default: the index table)")
	return cmd
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}
