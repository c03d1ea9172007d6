// Command lwwsnap merges and digests exported collection snapshots.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jrhy/lww"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	Verbose bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "lwwsnap",
		Short: "Inspect and merge LWW collection snapshots",
		Long: `Inspect and merge snapshots written by Collection.Export.

Values are treated as opaque JSON, so snapshots of any collection type
can be merged.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log merge decisions to stderr")
	cmd.AddCommand(newMergeCommand(opts))
	cmd.AddCommand(newHashCommand(opts))
	return cmd
}

// newCollection logs only errors unless verbose; skipped records are
// reported by importFile instead.
func newCollection(opts *rootOptions, stderr io.Writer, hash func(string) string) *lww.Collection[json.RawMessage] {
	level := slog.LevelError
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return lww.New[json.RawMessage](&lww.Config[json.RawMessage]{
		HashFunction: hash,
		Logger:       lww.NewLogger(stderr, level),
	})
}

// importFile imports one snapshot. In verbose mode the collection's logger
// already reports each skipped record, so they are not printed again.
func importFile(opts *rootOptions, c *lww.Collection[json.RawMessage], path string, stderr io.Writer) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	report, err := c.Import(b, false)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if opts.Verbose {
		return nil
	}
	for _, s := range report.Skipped {
		kind := "entry"
		if s.Tombstone {
			kind = "tombstone"
		}
		fmt.Fprintf(stderr, "%s: skipped %s %q: %v\n", path, kind, s.Key, s.Err)
	}
	return nil
}

func newMergeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <snapshot>...",
		Short: "Merge snapshots and print the result",
		Long: `Import every snapshot into one collection, in the order given, and
print the merged snapshot. Records that cannot be applied are reported
on stderr.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCollection(opts, cmd.ErrOrStderr(), nil)
			for _, path := range args {
				err := importFile(opts, c, path, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			b, err := c.Export()
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

func newHashCommand(opts *rootOptions) *cobra.Command {
	var useBlake2b bool
	cmd := &cobra.Command{
		Use:   "hash <snapshot>",
		Short: "Print the content hash of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := lww.RollingHash
			if useBlake2b {
				hash = lww.Blake2bHash
			}
			c := newCollection(opts, cmd.ErrOrStderr(), hash)
			err := importFile(opts, c, args[0], cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			h, err := c.Hash()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	cmd.Flags().BoolVar(&useBlake2b, "blake2b", false, "use BLAKE2b-256 instead of the rolling hash")
	return cmd
}
