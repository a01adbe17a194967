package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"lifedash/internal/config"
	"lifedash/internal/core"
)

const (
	dexcomWindow     = 7 * 24 * time.Hour
	dexcomTimeLayout = "2006-01-02T15:04:05"
)

// Dexcom reads estimated glucose values from a Dexcom CGM account.
type Dexcom struct {
	oauth   *oauth2.Config
	baseURL string
}

func NewDexcom(pc config.ProviderConfig) *Dexcom {
	base := strings.TrimRight(pc.BaseURL, "/")
	if base == "" {
		base = "https://sandbox-api.dexcom.com"
	}
	return &Dexcom{
		baseURL: base,
		oauth: &oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes:       []string{"offline_access"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/v2/oauth2/login",
				TokenURL:  base + "/v2/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
	}
}

func (d *Dexcom) Name() string                             { return config.ServiceDexcom }
func (d *Dexcom) OAuth2Config() *oauth2.Config             { return d.oauth }
func (d *Dexcom) AuthCodeOptions() []oauth2.AuthCodeOption { return nil }

type dexcomEGVs struct {
	EGVs []struct {
		SystemTime string   `json:"systemTime"`
		Value      *float64 `json:"value"`
		Trend      string   `json:"trend"`
		TrendRate  *float64 `json:"trendRate"`
	} `json:"egvs"`
}

// Fetch returns every reading of the last seven days and, for each UTC day,
// the latest reading as that day's glucose.
func (d *Dexcom) Fetch(ctx context.Context, client *http.Client, req FetchRequest) (Batch, error) {
	end := req.Now.UTC()
	start := end.Add(-dexcomWindow)

	q := url.Values{}
	q.Set("startDate", start.Format(dexcomTimeLayout))
	q.Set("endDate", end.Format(dexcomTimeLayout))

	var resp dexcomEGVs
	if err := getJSON(ctx, client, d.Name(), d.baseURL+"/v2/users/self/egvs?"+q.Encode(), &resp); err != nil {
		return Batch{}, err
	}

	var batch Batch
	latest := map[string]core.GlucoseReading{}
	for _, egv := range resp.EGVs {
		if egv.Value == nil {
			continue
		}
		at, err := parseDexcomTime(egv.SystemTime)
		if err != nil {
			return Batch{}, core.NewUpstreamError(d.Name(), http.StatusOK, err)
		}
		reading := core.GlucoseReading{
			UserID:     req.UserID,
			RecordedAt: at,
			Value:      *egv.Value,
			Trend:      egv.Trend,
			TrendRate:  egv.TrendRate,
		}
		batch.Glucose = append(batch.Glucose, reading)

		day := core.DateOf(at).String()
		if prev, ok := latest[day]; !ok || at.After(prev.RecordedAt) {
			latest[day] = reading
		}
	}

	days := make([]string, 0, len(latest))
	for day := range latest {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		r := latest[day]
		value := r.Value
		batch.Health = append(batch.Health, core.HealthMetrics{
			UserID:  req.UserID,
			Date:    core.DateOf(r.RecordedAt),
			Glucose: &value,
		})
	}
	return batch, nil
}

func parseDexcomTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(dexcomTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse systemTime %q: %w", s, err)
	}
	return t, nil
}
