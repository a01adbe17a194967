package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"

	"lifedash/internal/config"
	"lifedash/internal/core"
)

// CapitalOne reads card and bank transactions.
type CapitalOne struct {
	oauth   *oauth2.Config
	baseURL string
}

func NewCapitalOne(pc config.ProviderConfig) *CapitalOne {
	base := strings.TrimRight(pc.BaseURL, "/")
	if base == "" {
		base = "https://api.capitalone.com"
	}
	return &CapitalOne{
		baseURL: base,
		oauth: &oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       []string{"read_accounts", "read_transactions"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://api.capitalone.com/oauth2/authorize",
				TokenURL: base + "/oauth2/token",
			},
		},
	}
}

func (c *CapitalOne) Name() string { return config.ServiceCapitalOne }

func (c *CapitalOne) OAuth2Config() *oauth2.Config { return c.oauth }

func (c *CapitalOne) AuthCodeOptions() []oauth2.AuthCodeOption { return nil }

type capitalOneAccounts struct {
	Accounts []struct {
		AccountID   string `json:"accountId"`
		Nickname    string `json:"nickname"`
		ProductName string `json:"productName"`
	} `json:"accounts"`
}

type capitalOneTransactions struct {
	Transactions []struct {
		TransactionID   string          `json:"transactionId"`
		Amount          decimal.Decimal `json:"amount"`
		Description     string          `json:"description"`
		TransactionDate core.Date       `json:"transactionDate"`
		MerchantName    string          `json:"merchantName"`
	} `json:"transactions"`
}

// Fetch lists every account and keeps the debits of each, as positive
// amounts categorized on their description.
func (c *CapitalOne) Fetch(ctx context.Context, client *http.Client, req FetchRequest) (Batch, error) {
	var accounts capitalOneAccounts
	if err := getJSON(ctx, client, c.Name(), c.baseURL+"/accounts", &accounts); err != nil {
		return Batch{}, err
	}

	var batch Batch
	for _, acct := range accounts.Accounts {
		var txs capitalOneTransactions
		u := c.baseURL + "/accounts/" + url.PathEscape(acct.AccountID) + "/transactions?limit=100"
		if err := getJSON(ctx, client, c.Name(), u, &txs); err != nil {
			return Batch{}, err
		}

		name := acct.Nickname
		if name == "" {
			name = acct.ProductName
		}

		for _, t := range txs.Transactions {
			if !t.Amount.IsNegative() {
				continue
			}
			amount, err := core.FromDecimal(t.Amount)
			if err != nil {
				batch.Skipped++
				continue
			}
			batch.Transactions = append(batch.Transactions, core.RawTransaction{
				Transaction: core.Transaction{
					UserID:        req.UserID,
					AccountID:     acct.AccountID,
					TransactionID: t.TransactionID,
					Amount:        amount.Abs(),
					Description:   t.Description,
					Merchant:      t.MerchantName,
					AccountName:   name,
					Date:          t.TransactionDate,
				},
				Taxonomy:  core.PersonalTaxonomy,
				MatchText: t.Description,
			})
		}
	}
	return batch, nil
}
