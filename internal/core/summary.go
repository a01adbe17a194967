package core

// BudgetLine is one category row of the budget dashboard.
type BudgetLine struct {
	BudgetCategory
	Remaining   Money   `json:"remaining"`
	PercentUsed float64 `json:"percent_used"`
}

// BudgetOverview is the compact monthly summary shown as progress bars.
type BudgetOverview struct {
	UserID      string       `json:"user_id"`
	Month       Month        `json:"month"`
	Lines       []BudgetLine `json:"categories"`
	TotalTarget Money        `json:"total_target"`
	TotalSpent  Money        `json:"total_spent"`
	Remaining   Money        `json:"remaining"`
}

// NewBudgetOverview totals the rows of one month. Income rows are listed but
// not added to the spending totals.
func NewBudgetOverview(userID string, month Month, rows []BudgetCategory) BudgetOverview {
	o := BudgetOverview{UserID: userID, Month: month, Lines: make([]BudgetLine, 0, len(rows))}
	for _, row := range rows {
		o.Lines = append(o.Lines, BudgetLine{
			BudgetCategory: row,
			Remaining:      row.TargetAmount.Sub(row.SpentAmount),
			PercentUsed:    percentUsed(row.SpentAmount, row.TargetAmount),
		})
		if row.Name == CategoryIncome {
			continue
		}
		o.TotalTarget = o.TotalTarget.Add(row.TargetAmount)
		o.TotalSpent = o.TotalSpent.Add(row.SpentAmount)
	}
	o.Remaining = o.TotalTarget.Sub(o.TotalSpent)
	return o
}

func percentUsed(spent, target Money) float64 {
	if target.Cents <= 0 {
		return 0
	}
	p := float64(spent.Cents) / float64(target.Cents) * 100
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}
