package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/timmy/artsync/internal/service"
)

var sourcesPreview bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and check they respond",
	RunE:  sourcesAction,
}

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesPreview, "preview", false, "fetch and list each source's first page")
	rootCmd.AddCommand(sourcesCmd)
}

func sourcesAction(cmd *cobra.Command, _ []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	gallery, err := service.NewGalleryService(a.registry, a.cfg.Paging.MaxEmptyRounds, a.log)
	if err != nil {
		return err
	}
	printSources(cmd.OutOrStdout(), gallery.Overview(cmd.Context(), sourcesPreview))
	return nil
}

func printSources(out io.Writer, summaries []service.SourceSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No sources configured.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNAME\tACCOUNT\tBATCH\tSTATUS")
	for _, s := range summaries {
		status := "ok"
		if s.Error != "" {
			status = "error: " + s.Error
		} else if s.Filtered {
			status = "ok (filtered upstream)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d [%d-%d]\t%s\n",
			s.ID, s.Type, s.Name, s.WhoAmI, s.BatchSize, s.MinBatchSize, s.MaxBatchSize, status)
	}
	_ = w.Flush()

	for _, s := range summaries {
		if s.FirstPage == nil {
			continue
		}
		fmt.Fprintf(out, "\n%s (first %d):\n", s.ID, len(s.FirstPage.Items))
		for _, item := range s.FirstPage.Items {
			fmt.Fprintf(out, "  %s  %-8s %s\n", item.GetTimestamp().Format("2006-01-02"), item.Kind(), item.GetTitle())
		}
	}
}
