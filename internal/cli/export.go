package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/timmy/artsync/internal/domain"
	"github.com/timmy/artsync/internal/service"
)

var (
	exportSource  string
	exportLimit   int
	exportAll     bool
	exportForce   bool
	exportPartial bool
	exportJSON    bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export items from a source to storage",
	Example: `  artsync export --source weasyl --limit 50
  artsync export --source blog --all --partial`,
	RunE: exportAction,
}

func init() {
	exportCmd.Flags().StringVarP(&exportSource, "source", "s", "", "source ID to export from")
	exportCmd.Flags().IntVarP(&exportLimit, "limit", "n", 0, "number of items to export")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "export every item the source has")
	exportCmd.Flags().BoolVar(&exportForce, "force", false, "re-export items already in the archive")
	exportCmd.Flags().BoolVar(&exportPartial, "partial", false, "on a fetch failure, still export what was fetched")
	exportCmd.Flags().BoolVar(&exportJSON, "json", false, "print the job as JSON")
	_ = exportCmd.MarkFlagRequired("source")
	exportCmd.MarkFlagsMutuallyExclusive("limit", "all")
	rootCmd.AddCommand(exportCmd)
}

func exportAction(cmd *cobra.Command, _ []string) error {
	if !exportAll && exportLimit <= 0 {
		return fmt.Errorf("either --limit N (N > 0) or --all is required")
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, _, err := a.exportService(ctx)
	if err != nil {
		return err
	}

	job, err := svc.Export(ctx, exportSource, exportLimit, service.ExportOptions{
		All:     exportAll,
		Force:   exportForce,
		Partial: exportPartial,
	})
	if err != nil {
		return err
	}

	if exportJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(job); err != nil {
			return err
		}
	} else {
		printJob(cmd.OutOrStdout(), job)
	}

	if job.Status == domain.JobStatusFailed {
		return fmt.Errorf("export %s failed", job.ID)
	}
	return nil
}

func printJob(w io.Writer, job *domain.ExportJob) {
	fmt.Fprintf(w, "Export %s: %s\n", job.ID, job.Status)
	fmt.Fprintf(w, "  fetched:  %d\n", job.FetchedItems)
	fmt.Fprintf(w, "  exported: %d\n", job.ExportedItems)
	fmt.Fprintf(w, "  skipped:  %d\n", job.SkippedItems)
	fmt.Fprintf(w, "  failed:   %d\n", job.FailedItems)
	if job.ErrorLog != "" {
		fmt.Fprintf(w, "  errors:\n%s\n", job.ErrorLog)
	}
}
