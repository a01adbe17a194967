package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"lifedash/internal/core"
	ports "lifedash/internal/sheets"
)

// Client exports budget overviews to one spreadsheet, one tab per month.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Tab names are "<budgetBase> <YYYY-MM>".
	budgetBase string
}

// Ensure interface conformance
var (
	_ ports.BudgetExporter = (*Client)(nil)
	_ ports.TargetReader   = (*Client)(nil)
)

// NewFromEnv creates a Sheets client authenticated with a service account.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context, spreadsheetID, budgetBase string) (*Client, error) {
	creds, err := serviceAccountCredentials(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, spreadsheetID, budgetBase,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// New creates a Sheets client with explicit client options.
func New(ctx context.Context, spreadsheetID, budgetBase string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	budgetBase = strings.TrimSpace(budgetBase)
	if budgetBase == "" {
		budgetBase = "Budget"
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, budgetBase: budgetBase}, nil
}

func serviceAccountCredentials(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		slog.DebugContext(ctx, "Read service account credentials", "path", file, "size", len(b))
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// SheetName returns the tab holding month.
func (c *Client) SheetName(month core.Month) string {
	return fmt.Sprintf("%s %s", c.budgetBase, month)
}

// ExportOverview replaces the month's tab with the overview, creating the tab
// when missing.
func (c *Client) ExportOverview(ctx context.Context, o core.BudgetOverview) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	title := c.SheetName(o.Month)
	if err := c.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	clearRange := fmt.Sprintf("%s!A:E", title)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", clearRange, err)
	}

	rows := overviewRows(o)
	rng := fmt.Sprintf("%s!A1:E%d", title, len(rows))
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Budget exported to sheet",
		"spreadsheet_id", c.spreadsheetID, "range", rng, "categories", len(o.Lines))
	return rng, nil
}

// ReadTargets reads the Category and Target columns of the month's tab.
func (c *Client) ReadTargets(ctx context.Context, month core.Month) ([]ports.Target, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A:E", c.SheetName(month))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseTargets(resp.Values)
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet %s: %w", c.spreadsheetID, err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	slog.InfoContext(ctx, "Created budget sheet", "title", title)
	return nil
}
