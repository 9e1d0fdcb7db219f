package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dgallion1/docjudge/internal/store"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var chunksJSON bool

var chunksCmd = &cobra.Command{
	Use:   "chunks [store.jsonl]",
	Short: "List chunk results saved in a JSONL store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Store.Path
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return eris.New("no store path given and store.path is not configured")
		}

		results, err := store.NewJSONLStore(path).LoadAll()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if chunksJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CHUNK\tDEGRADED\tTOPICS\tSUMMARY")
		for _, r := range results {
			fmt.Fprintf(tw, "%d\t%t\t%s\t%s\n", r.ChunkID, r.Degraded, strings.Join(r.Topics, ", "), oneLine(r.Summary, 80))
		}
		return tw.Flush()
	},
}

func init() {
	chunksCmd.Flags().BoolVar(&chunksJSON, "json", false, "print results as JSON")
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-3]) + "..."
	}
	return s
}
