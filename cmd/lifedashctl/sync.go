package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lifedash/internal/services"
)

func syncCmd(opts *rootOptions) *cobra.Command {
	var connected bool
	cmd := &cobra.Command{
		Use:   "sync [service...]",
		Short: "Pull provider data for a user",
		Long:  `Sync the named services for the user, every registered service when none is named, or only the connected ones with --connected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := opts.requireUser()
			if err != nil {
				return err
			}
			a, err := openApp(opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var report services.SyncReport
			if connected && len(args) == 0 {
				report, err = a.svc.Sync.SyncConnected(cmd.Context(), userID)
			} else {
				report, err = a.svc.Sync.Sync(cmd.Context(), userID, args)
			}
			if err != nil {
				return err
			}

			printReport(cmd, report)
			if report.Succeeded() < len(report.Results) {
				return fmt.Errorf("%s", report.Summary)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&connected, "connected", false, "only sync services the user has connected")
	return cmd
}

func printReport(cmd *cobra.Command, report services.SyncReport) {
	out := cmd.OutOrStdout()
	names := make([]string, 0, len(report.Results))
	for name := range report.Results {
		names = append(names, name)
	}
	slices.Sort(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		TitleStyle.Render("SERVICE"), TitleStyle.Render("STATUS"), TitleStyle.Render("RECORDS"), TitleStyle.Render("DETAIL"))
	for _, name := range names {
		res := report.Results[name]
		status := SuccessStyle.Render("ok")
		detail := SubtleStyle.Render(res.Duration)
		if !res.Success {
			status = ErrorStyle.Render("failed")
			detail = res.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", name, status, res.Records, detail)
	}
	_ = w.Flush()
	fmt.Fprintln(out, report.Summary)
}
