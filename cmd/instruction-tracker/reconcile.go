package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bigkaa/instruction-tracker/internal/service"
)

func newReconcileCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Сверить каталог загрузок с коллекцией записей",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			report, _, err := service.NewReconcileService(a.records, a.cfg.ReconcileInterval, a.logger).RunOnce()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ok, err := writeStructured(out, root.format, report); ok {
				return err
			}
			printReport(out, report)
			return nil
		},
	}
}

func printReport(w io.Writer, r *service.ReconcileReport) {
	fmt.Fprintf(w, "Проверено файлов: %d\n", r.FilesChecked)
	fmt.Fprintf(w, "В порядке: %d, без записи: %d, отсутствуют: %d, архивные (retain): %d\n",
		r.Summary.Ok, r.Summary.OrphanedFiles, r.Summary.MissingFiles, r.Summary.Retained)
	for _, issue := range r.Issues {
		if issue.RecordID != "" {
			fmt.Fprintf(w, "  %s\t%s\t(запись %s)\n", issue.Type, issue.Path, issue.RecordID)
			continue
		}
		fmt.Fprintf(w, "  %s\t%s\n", issue.Type, issue.Path)
	}
}
