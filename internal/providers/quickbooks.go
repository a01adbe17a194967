package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"

	"lifedash/internal/config"
	"lifedash/internal/core"
)

const (
	quickBooksWindow       = 90 * 24 * time.Hour
	quickBooksExpenseLine  = "AccountBasedExpenseLineDetail"
	quickBooksAccountID    = "quickbooks"
	quickBooksAccountName  = "QuickBooks"
	quickBooksMinorVersion = "65"
)

// ErrMissingRealm is returned when a QuickBooks token has no company id.
var ErrMissingRealm = errors.New("quickbooks realm id missing")

// QuickBooks reads business expenses and invoices of one company.
type QuickBooks struct {
	oauth   *oauth2.Config
	baseURL string
}

func NewQuickBooks(pc config.ProviderConfig) *QuickBooks {
	base := strings.TrimRight(pc.BaseURL, "/")
	if base == "" {
		base = "https://sandbox-quickbooks.api.intuit.com"
	}
	return &QuickBooks{
		baseURL: base,
		oauth: &oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       []string{"com.intuit.quickbooks.accounting"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://appcenter.intuit.com/connect/oauth2",
				TokenURL:  "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
}

func (q *QuickBooks) Name() string { return config.ServiceQuickBooks }

func (q *QuickBooks) OAuth2Config() *oauth2.Config { return q.oauth }

func (q *QuickBooks) AuthCodeOptions() []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
}

type quickBooksRef struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

type quickBooksPurchase struct {
	ID          string        `json:"Id"`
	TxnDate     core.Date     `json:"TxnDate"`
	PrivateNote string        `json:"PrivateNote"`
	EntityRef   quickBooksRef `json:"EntityRef"`
	Line        []struct {
		ID                            string          `json:"Id"`
		Amount                        decimal.Decimal `json:"Amount"`
		Description                   string          `json:"Description"`
		DetailType                    string          `json:"DetailType"`
		AccountBasedExpenseLineDetail struct {
			AccountRef quickBooksRef `json:"AccountRef"`
		} `json:"AccountBasedExpenseLineDetail"`
	} `json:"Line"`
}

type quickBooksInvoice struct {
	ID       string          `json:"Id"`
	TxnDate  core.Date       `json:"TxnDate"`
	TotalAmt decimal.Decimal `json:"TotalAmt"`
}

type quickBooksQueryResponse struct {
	QueryResponse struct {
		Purchase []quickBooksPurchase `json:"Purchase"`
		Invoice  []quickBooksInvoice  `json:"Invoice"`
	} `json:"QueryResponse"`
}

// Fetch turns every expense line of the last 90 days into a transaction
// categorized on its expense account, and sets the "Business Income" target
// of the current month to the invoiced total.
func (q *QuickBooks) Fetch(ctx context.Context, client *http.Client, req FetchRequest) (Batch, error) {
	if req.RealmID == "" {
		return Batch{}, core.NewUpstreamError(q.Name(), http.StatusBadRequest, ErrMissingRealm)
	}

	now := req.Now.UTC()
	since := core.DateOf(now.Add(-quickBooksWindow)).String()

	var purchases quickBooksQueryResponse
	if err := q.query(ctx, client, req.RealmID,
		fmt.Sprintf("SELECT * FROM Purchase WHERE TxnDate >= '%s' MAXRESULTS 100", since), &purchases); err != nil {
		return Batch{}, err
	}

	var invoices quickBooksQueryResponse
	if err := q.query(ctx, client, req.RealmID,
		fmt.Sprintf("SELECT * FROM Invoice WHERE TxnDate >= '%s' MAXRESULTS 100", since), &invoices); err != nil {
		return Batch{}, err
	}

	var batch Batch
	for _, p := range purchases.QueryResponse.Purchase {
		merchant := p.EntityRef.Name
		if merchant == "" {
			merchant = "Unknown"
		}
		for _, line := range p.Line {
			if line.DetailType != quickBooksExpenseLine || !line.Amount.IsPositive() {
				continue
			}
			amount, err := core.FromDecimal(line.Amount)
			if err != nil {
				batch.Skipped++
				continue
			}
			desc := line.Description
			if desc == "" {
				desc = p.PrivateNote
			}
			if desc == "" {
				desc = "QuickBooks Expense"
			}
			batch.Transactions = append(batch.Transactions, core.RawTransaction{
				Transaction: core.Transaction{
					UserID:        req.UserID,
					AccountID:     quickBooksAccountID,
					TransactionID: fmt.Sprintf("qb_%s_%s", p.ID, line.ID),
					Amount:        amount,
					Description:   desc,
					Merchant:      merchant,
					AccountName:   quickBooksAccountName,
					Date:          p.TxnDate,
				},
				Taxonomy:  core.BusinessTaxonomy,
				MatchText: line.AccountBasedExpenseLineDetail.AccountRef.Name,
			})
		}
	}

	month := core.CurrentMonth(now)
	income := decimal.Zero
	for _, inv := range invoices.QueryResponse.Invoice {
		if inv.TxnDate.Month() == month {
			income = income.Add(inv.TotalAmt)
		}
	}
	if income.IsPositive() {
		amount, err := core.FromDecimal(income)
		if err != nil {
			batch.Skipped++
		} else {
			batch.Targets = append(batch.Targets, Target{
				Category: core.CategoryIncome,
				Month:    month,
				Amount:   amount,
			})
		}
	}

	return batch, nil
}

func (q *QuickBooks) query(ctx context.Context, client *http.Client, realmID, statement string, out any) error {
	v := url.Values{}
	v.Set("query", statement)
	v.Set("minorversion", quickBooksMinorVersion)
	u := q.baseURL + "/v3/company/" + url.PathEscape(realmID) + "/query?" + v.Encode()
	return getJSON(ctx, client, q.Name(), u, out)
}
