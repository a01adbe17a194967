package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/fitness/v1"
	"google.golang.org/api/option"

	"lifedash/internal/config"
	"lifedash/internal/core"
)

const (
	googleFitStepsType   = "com.google.step_count.delta"
	googleFitStepsSource = "derived:com.google.step_count.delta:com.google.android.gms:estimated_steps"
	dayMillis            = int64(24 * time.Hour / time.Millisecond)
)

// GoogleFit reads the daily step count from Google Fit.
type GoogleFit struct {
	oauth    *oauth2.Config
	endpoint string
}

// NewGoogleFit builds the provider. BaseURL, when set, replaces the Fitness
// API endpoint.
func NewGoogleFit(pc config.ProviderConfig) *GoogleFit {
	endpoint := pc.BaseURL
	if endpoint != "" && !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return &GoogleFit{
		endpoint: endpoint,
		oauth: &oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			RedirectURL:  pc.RedirectURL,
			Scopes: []string{
				fitness.FitnessActivityReadScope,
				fitness.FitnessBodyReadScope,
				fitness.FitnessHeartRateReadScope,
				fitness.FitnessSleepReadScope,
			},
			Endpoint: google.Endpoint,
		},
	}
}

func (g *GoogleFit) Name() string { return config.ServiceGoogleFit }

func (g *GoogleFit) OAuth2Config() *oauth2.Config { return g.oauth }

func (g *GoogleFit) AuthCodeOptions() []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}
}

// Fetch sums today's step deltas (UTC) into the day's health record.
func (g *GoogleFit) Fetch(ctx context.Context, client *http.Client, req FetchRequest) (Batch, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err := fitness.NewService(ctx, opts...)
	if err != nil {
		return Batch{}, fmt.Errorf("create fitness service: %w", err)
	}

	today := core.DateOf(req.Now)
	start := today.UnixMilli()

	resp, err := svc.Users.Dataset.Aggregate("me", &fitness.AggregateRequest{
		AggregateBy: []*fitness.AggregateBy{{
			DataTypeName: googleFitStepsType,
			DataSourceId: googleFitStepsSource,
		}},
		BucketByTime:    &fitness.BucketByTime{DurationMillis: dayMillis},
		StartTimeMillis: start,
		EndTimeMillis:   start + dayMillis,
	}).Context(ctx).Do()
	if err != nil {
		return Batch{}, toUpstream(g.Name(), fmt.Errorf("aggregate steps: %w", err))
	}

	var steps int64
	for _, bucket := range resp.Bucket {
		for _, ds := range bucket.Dataset {
			for _, pt := range ds.Point {
				for _, v := range pt.Value {
					steps += v.IntVal
				}
			}
		}
	}

	return Batch{
		Health: []core.HealthMetrics{{
			UserID: req.UserID,
			Date:   today,
			Steps:  &steps,
		}},
	}, nil
}
