package google

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"lifedash/internal/core"
	ports "lifedash/internal/sheets"
)

var overviewHeader = []any{"Category", "Target", "Spent", "Remaining", "% Used"}

// overviewRows lays out an overview as header, one row per category and a
// closing Total row. Amounts are plain numbers in currency units.
func overviewRows(o core.BudgetOverview) [][]any {
	rows := make([][]any, 0, len(o.Lines)+2)
	rows = append(rows, overviewHeader)
	for _, line := range o.Lines {
		rows = append(rows, []any{
			line.Name,
			units(line.TargetAmount),
			units(line.SpentAmount),
			units(line.Remaining),
			math.Round(line.PercentUsed*10) / 10,
		})
	}
	rows = append(rows, []any{"Total", units(o.TotalTarget), units(o.TotalSpent), units(o.Remaining), ""})
	return rows
}

func units(m core.Money) float64 {
	return m.Decimal().InexactFloat64()
}

// parseTargets converts a values matrix whose first row carries the
// Category and Target headers into targets. Blank, commented (#) and Total
// rows are skipped, and the first row of a repeated category wins.
func parseTargets(values [][]any) ([]ports.Target, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	colCategory := indexOf(headers, "Category")
	colTarget := indexOf(headers, "Target")
	if colCategory == -1 || colTarget == -1 {
		return nil, fmt.Errorf("unexpected budget header: want Category and Target, got headers=%v", headers)
	}

	seen := map[string]bool{}
	var out []ports.Target
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		name := safeGet(row, colCategory)
		if name == "" || strings.HasPrefix(name, "#") || strings.EqualFold(name, "total") || seen[name] {
			continue
		}
		raw := safeGet(row, colTarget)
		if raw == "" {
			continue
		}
		amount, err := core.ParseAmount(stripCurrency(raw))
		if err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i+1, name, err)
		}
		if amount.Cents < 0 {
			return nil, fmt.Errorf("row %d (%s): %w", i+1, name, core.NewValidationError("amount", "target must not be negative"))
		}
		seen[name] = true
		out = append(out, ports.Target{Category: name, Amount: amount})
	}
	return out, nil
}

// stripCurrency drops currency symbols and spaces, and thousands separators
// when both separators appear ("1,234.50" and "1.234,50" both become 1234.50).
func stripCurrency(s string) string {
	s = strings.NewReplacer("€", "", "$", "", " ", "", "\u00a0", "").Replace(s)
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	if dot != -1 && comma != -1 {
		if dot > comma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if f, ok := v.(float64); ok {
			// Unformatted numbers would otherwise print as 1e+06.
			out[i] = strconv.FormatFloat(f, 'f', -1, 64)
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
