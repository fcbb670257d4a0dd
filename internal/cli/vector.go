package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/termvector"
	apperrors "github.com/Adithya-Monish-Kumar-K/qlm-retrieval/pkg/errors"
)

func (a *app) newVectorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vector <docId>",
		Short: "Print the term frequencies of one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return apperrors.Newf(apperrors.ErrConfiguration, "document id %q is not a non-negative integer", args[0])
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			oc, err := openCollection(ctx, cfg)
			if err != nil {
				return err
			}
			defer oc.Close()

			vec, err := termvector.NewExtractor(oc.index, oc.analyzer).Get(ctx, docID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "doc %d: length %d, %d distinct terms\n", vec.DocID, vec.Length, len(vec.Freqs))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, term := range vec.Terms() {
				fmt.Fprintf(tw, "%s\t%d\n", term, vec.TF(term))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("format", "", "document format for the memory backend (lines, jsonl)")
	return cmd
}
