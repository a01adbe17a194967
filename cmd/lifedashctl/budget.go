package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lifedash/internal/core"
	"lifedash/internal/sheets"
	gsheet "lifedash/internal/sheets/google"
)

func budgetCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect and plan monthly budgets",
	}
	cmd.AddCommand(budgetTargetCmd(opts))
	cmd.AddCommand(budgetShowCmd(opts))
	cmd.AddCommand(budgetExportCmd(opts))
	cmd.AddCommand(budgetImportCmd(opts))
	return cmd
}

func budgetTargetCmd(opts *rootOptions) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:     "target <category> <amount>",
		Short:   "Set the monthly target of a category",
		Example: `  lifedashctl budget target Groceries 450 --month 2024-03`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := opts.requireUser()
			if err != nil {
				return err
			}
			amount, err := core.ParseAmount(args[1])
			if err != nil {
				return err
			}
			m, err := monthOrCurrent(month)
			if err != nil {
				return err
			}

			a, err := openApp(opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			b, err := a.svc.Ingest.SubmitBudget(cmd.Context(), userID, core.BudgetSubmission{
				Category: args[0],
				Amount:   &amount,
				Month:    m.String(),
				Action:   core.ActionSet,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(
				fmt.Sprintf("%s %s: target %s (spent %s)", b.Month, b.Name, b.TargetAmount, b.SpentAmount)))
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default: current month)")
	return cmd
}

func budgetShowCmd(opts *rootOptions) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the budget overview of a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := opts.requireUser()
			if err != nil {
				return err
			}
			m, err := monthOrCurrent(month)
			if err != nil {
				return err
			}

			a, err := openApp(opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.repo.ListBudgetCategories(cmd.Context(), userID, m)
			if err != nil {
				return err
			}
			printOverview(cmd, core.NewBudgetOverview(userID, m, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default: current month)")
	return cmd
}

func budgetExportCmd(opts *rootOptions) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the month overview to the Google spreadsheet",
		Long:  `Replace the "<GOOGLE_BUDGET_SHEET_NAME> <YYYY-MM>" tab of GOOGLE_SPREADSHEET_ID with the budget overview, creating the tab when missing.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := opts.requireUser()
			if err != nil {
				return err
			}
			m, err := monthOrCurrent(month)
			if err != nil {
				return err
			}

			a, err := openApp(opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			exporter, err := gsheet.NewFromEnv(cmd.Context(), a.cfg.SpreadsheetID, a.cfg.BudgetSheetName)
			if err != nil {
				return err
			}
			rows, err := a.repo.ListBudgetCategories(cmd.Context(), userID, m)
			if err != nil {
				return err
			}
			ref, err := exporter.ExportOverview(cmd.Context(), core.NewBudgetOverview(userID, m, rows))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Exported "+ref))
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default: current month)")
	return cmd
}

func budgetImportCmd(opts *rootOptions) *cobra.Command {
	var month string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Set targets from the Target column of the month's sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := opts.requireUser()
			if err != nil {
				return err
			}
			m, err := monthOrCurrent(month)
			if err != nil {
				return err
			}

			a, err := openApp(opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			reader, err := gsheet.NewFromEnv(cmd.Context(), a.cfg.SpreadsheetID, a.cfg.BudgetSheetName)
			if err != nil {
				return err
			}
			n, err := importTargets(cmd.Context(), reader, a.svc.Ingest, userID, m)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("Imported %d targets for %s", n, m)))
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default: current month)")
	return cmd
}

type budgetSubmitter interface {
	SubmitBudget(ctx context.Context, userID string, sub core.BudgetSubmission) (core.BudgetCategory, error)
}

// importTargets applies every target of the sheet as a "set" submission.
func importTargets(ctx context.Context, reader sheets.TargetReader, budgets budgetSubmitter, userID string, month core.Month) (int, error) {
	targets, err := reader.ReadTargets(ctx, month)
	if err != nil {
		return 0, err
	}
	for i, t := range targets {
		amount := t.Amount
		_, err := budgets.SubmitBudget(ctx, userID, core.BudgetSubmission{
			Category: t.Category,
			Amount:   &amount,
			Month:    month.String(),
			Action:   core.ActionSet,
		})
		if err != nil {
			return i, fmt.Errorf("set target %s: %w", t.Category, err)
		}
	}
	return len(targets), nil
}

func printOverview(cmd *cobra.Command, o core.BudgetOverview) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, TitleStyle.Render(fmt.Sprintf("Budget %s for %s", o.Month, o.UserID)))
	if len(o.Lines) == 0 {
		fmt.Fprintln(out, SubtleStyle.Render("No budget categories for this month."))
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tSPENT\tTARGET\tREMAINING\tUSED")
	for _, line := range o.Lines {
		used := fmt.Sprintf("%3.0f%% %s", line.PercentUsed, bar(line.PercentUsed, 20))
		if line.Name != core.CategoryIncome && line.TargetAmount.Cents > 0 && line.SpentAmount.Cents > line.TargetAmount.Cents {
			used = ErrorStyle.Render(used)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", line.Name, line.SpentAmount, line.TargetAmount, line.Remaining, used)
	}
	_ = w.Flush()
	fmt.Fprintf(out, "Total spent %s of %s, remaining %s\n", o.TotalSpent, o.TotalTarget, o.Remaining)
}

func bar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func monthOrCurrent(s string) (core.Month, error) {
	if s == "" {
		return core.CurrentMonth(time.Now()), nil
	}
	return core.ParseMonth(s)
}
