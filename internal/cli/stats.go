package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/qlm-retrieval/internal/collection"
)

func (a *app) newStatsCommand() *cobra.Command {
	var verify, listTerms bool
	cmd := &cobra.Command{
		Use:   "stats [term...]",
		Short: "Print collection statistics and per-term frequencies",
		Long: `stats builds the collection statistics and prints the document count and
vocabulary size. Each term argument is analyzed like a query and reported with
its document frequency and collection frequency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
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
			st, _, err := buildStatistics(ctx, cfg, oc)
			if err != nil {
				return err
			}
			if verify {
				if err := st.Verify(ctx); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "documents:       %d\n", st.NumDocs())
			fmt.Fprintf(out, "vocabulary size: %d\n", st.VocabularySize())
			if st.SkippedDocs() > 0 {
				fmt.Fprintf(out, "skipped:         %d\n", st.SkippedDocs())
			}
			if verify {
				fmt.Fprintln(out, "verified:        collection frequencies sum to vocabulary size")
			}

			var terms []string
			for _, arg := range args {
				terms = append(terms, oc.analyzer.Analyze(arg)...)
			}
			if listTerms {
				enum, ok := oc.index.(collection.TermEnumerator)
				if !ok {
					return fmt.Errorf("backend %s cannot enumerate terms", cfg.Collection.Backend)
				}
				all, err := enum.Terms(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "distinct terms:  %d\n", len(all))
				terms = append(terms, all...)
			}
			if len(terms) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TERM\tDF\tCF")
			for _, term := range terms {
				df, err := st.DocFreq(ctx, term)
				if err != nil {
					return err
				}
				cf, err := st.TotalTermFreq(ctx, term)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\n", term, df, cf)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "check that collection frequencies sum to the vocabulary size")
	cmd.Flags().BoolVar(&listTerms, "terms", false, "list every term of the collection")
	cmd.Flags().String("format", "", "document format for the memory backend (lines, jsonl)")
	return cmd
}
