package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nexusrtb/catalyst/internal/dataurl"
	"github.com/nexusrtb/catalyst/internal/notify"
	"github.com/nexusrtb/catalyst/internal/shaping"
	"github.com/nexusrtb/catalyst/pkg/redis"
)

func setupDeps(t *testing.T) (*miniredis.Miniredis, *Dependencies) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client, err := redis.New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	return mr, &Dependencies{
		Notify:  notify.New(client, time.Minute),
		Shaping: shaping.NewManager(),
		Metrics: NewMetrics("billing_test_" + t.Name()),
	}
}

func buildEventURL(t *testing.T, bidEventID string, shapingKey string) string {
	u := dataurl.New("https://events.example.com/bill")
	fields := map[string]string{
		FieldBidEventID:     bidEventID,
		FieldAuctionEventID: "auc1",
		FieldBidderID:       "bidder1",
		FieldEndpointID:     "ep1",
		FieldPubID:          "pub1",
		FieldAdFormat:       "banner",
		FieldChannel:        "site",
		FieldEventSource:    string(EventSourceBurl),
	}
	for k, v := range fields {
		if err := u.AddString(k, v); err != nil {
			t.Fatalf("AddString(%s): %v", k, err)
		}
	}
	if err := u.AddInt(FieldBidTimestamp, time.Now().Unix()); err != nil {
		t.Fatalf("AddInt timestamp: %v", err)
	}
	if err := u.AddFloat(FieldCPMGross, 2.5); err != nil {
		t.Fatalf("AddFloat gross: %v", err)
	}
	if err := u.AddFloat(FieldCPMCost, 2.0); err != nil {
		t.Fatalf("AddFloat cost: %v", err)
	}
	if shapingKey != "" {
		if err := u.AddString(FieldShapingKey, shapingKey); err != nil {
			t.Fatalf("AddString shaping_key: %v", err)
		}
	}
	u.Finalize()
	raw, err := u.URL(true)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	return raw
}

func TestRunFiresBurlOnFreshHit(t *testing.T) {
	mr, deps := setupDeps(t)
	defer mr.Close()

	fired := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fired = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := context.Background()
	if err := deps.Notify.Cache(ctx, "bid1", notify.NoticeUrls{Burl: srv.URL}); err != nil {
		t.Fatalf("Cache: %v", err)
	}

	raw := buildEventURL(t, "bid1", "")
	result, err := Run(ctx, deps, raw)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Event.BidderID != "bidder1" {
		t.Fatalf("expected extracted bidder1, got %s", result.Event.BidderID)
	}
	if !fired {
		t.Fatal("expected the demand partner's burl to be fired")
	}
}

func TestRunBailsOnExpiredOrDuplicateHit(t *testing.T) {
	mr, deps := setupDeps(t)
	defer mr.Close()

	raw := buildEventURL(t, "never-cached", "")
	_, err := Run(context.Background(), deps, raw)
	if err == nil {
		t.Fatal("expected bail when no NotificationCache entry exists")
	}
}

func TestRunRecordsMetricsEvenWhenExpired(t *testing.T) {
	mr, deps := setupDeps(t)
	defer mr.Close()

	raw := buildEventURL(t, "also-never-cached", "")
	_, _ = Run(context.Background(), deps, raw)

	got := testutil.ToFloat64(deps.Metrics.ImpsTotal.WithLabelValues("bidder1", "ep1", "pub1"))
	if got != 1 {
		t.Fatalf("expected imps_total recorded once despite the bail, got %v", got)
	}
}

func TestRunSucceedsWhenShapingKeyPresent(t *testing.T) {
	mr, deps := setupDeps(t)
	defer mr.Close()

	ctx := context.Background()
	if err := deps.Notify.Cache(ctx, "bid2", notify.NoticeUrls{}); err != nil {
		t.Fatalf("Cache: %v", err)
	}

	vec := shaping.Vector{"US", "banner"}
	raw := buildEventURL(t, "bid2", vec.Key())
	if _, err := Run(ctx, deps, raw); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
