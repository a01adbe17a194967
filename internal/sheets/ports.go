package sheets

import (
	"context"

	"lifedash/internal/core"
)

// Target is a planned monthly amount read back from a spreadsheet.
type Target struct {
	Category string
	Amount   core.Money
}

// Ports for the spreadsheet adapter.
type (
	// BudgetExporter writes a month overview to a sheet and returns the
	// written range.
	BudgetExporter interface {
		ExportOverview(ctx context.Context, o core.BudgetOverview) (rowRef string, err error)
	}

	// TargetReader reads the targets edited in the sheet of a month.
	TargetReader interface {
		ReadTargets(ctx context.Context, month core.Month) ([]Target, error)
	}
)
