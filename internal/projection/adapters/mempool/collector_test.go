package mempool

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	projection "solarmine-planner/internal/projection/domain"
	"solarmine-planner/internal/projection/infrastructure/memory"
)

func newFakeMempool(t *testing.T, failFees bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/prices", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"time":1735689600,"USD":95000,"EUR":90000}`))
	})
	mux.HandleFunc("/api/v1/mining/hashrate/3d", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hashrates":[{"timestamp":1735603200,"avgHashrate":7.5e20}],"difficulty":[],"currentHashrate":8e20,"currentDifficulty":1.1e14}`))
	})
	mux.HandleFunc("/api/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("875000\n"))
	})
	mux.HandleFunc("/api/v1/difficulty-adjustment", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"progressPercent":50,"difficultyChange":1.2,"remainingBlocks":1008,"timeAvg":590000}`))
	})
	mux.HandleFunc("/api/v1/mining/blocks/fees/24h", func(w http.ResponseWriter, r *http.Request) {
		if failFees {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"avgHeight":874990,"timestamp":1735603200,"avgFees":10000000},{"avgHeight":875000,"timestamp":1735689600,"avgFees":30000000}]`))
	})
	return httptest.NewServer(mux)
}

func TestCollectOnceStoresSnapshot(t *testing.T) {
	server := newFakeMempool(t, false)
	defer server.Close()

	store := memory.NewMarketStore()
	collector, err := NewCollector(NewClient(server.URL+"/api", NewRateLimiter(100, time.Second)), store, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	collector.now = func() time.Time { return fixed }

	snapshot, err := collector.CollectOnce(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if snapshot.PriceUSD != 95000 || snapshot.BlockHeight != 875000 {
		t.Fatalf("snapshot mismatch: %+v", snapshot)
	}
	if math.Abs(snapshot.NetworkHashrateEH-800) > 1e-9 {
		t.Fatalf("hashrate mismatch: got=%v want=800", snapshot.NetworkHashrateEH)
	}
	if snapshot.BlockRewardBTC != 3.125 {
		t.Fatalf("reward mismatch: got=%v want=3.125", snapshot.BlockRewardBTC)
	}
	if math.Abs(snapshot.AvgBlockTimeSeconds-590) > 1e-9 {
		t.Fatalf("block time mismatch: got=%v want=590", snapshot.AvgBlockTimeSeconds)
	}
	if math.Abs(snapshot.FeesPerBlockBTC-0.2) > 1e-12 {
		t.Fatalf("fees mismatch: got=%v want=0.2", snapshot.FeesPerBlockBTC)
	}

	stored, err := store.SnapshotAt(context.Background(), fixed)
	if err != nil {
		t.Fatalf("snapshot at: %v", err)
	}
	if stored == nil || stored.PriceUSD != 95000 {
		t.Fatalf("stored snapshot mismatch: %+v", stored)
	}
}

func TestCollectOnceToleratesMissingFees(t *testing.T) {
	server := newFakeMempool(t, true)
	defer server.Close()

	store := memory.NewMarketStore()
	collector, err := NewCollector(NewClient(server.URL+"/api", NewRateLimiter(100, time.Second)), store, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	snapshot, err := collector.CollectOnce(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if snapshot.FeesPerBlockBTC != 0 {
		t.Fatalf("fees mismatch: got=%v want=0", snapshot.FeesPerBlockBTC)
	}
}

type failingWriter struct{}

func (failingWriter) SaveSnapshot(ctx context.Context, snapshot projection.MarketSnapshot) error {
	return context.DeadlineExceeded
}

func TestCollectOnceSurfacesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer server.Close()

	collector, err := NewCollector(NewClient(server.URL, NewRateLimiter(100, time.Second)), failingWriter{}, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	_, err = collector.CollectOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestRateLimiterBurstThenBlocks(t *testing.T) {
	limiter := NewRateLimiter(3, time.Hour)
	for i := 0; i < 3; i++ {
		if !limiter.TryAcquire() {
			t.Fatalf("token %d should be available", i+1)
		}
	}
	if limiter.TryAcquire() {
		t.Fatalf("bucket should be empty")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx); err == nil {
		t.Fatalf("expected wait to fail when no token arrives before the deadline")
	}
}

func TestStartReturnsAndCollectsInBackground(t *testing.T) {
	server := newFakeMempool(t, false)
	defer server.Close()

	store := memory.NewMarketStore()
	collector, err := NewCollector(NewClient(server.URL+"/api", NewRateLimiter(100, time.Second)), store, nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	collector.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	returned := make(chan struct{})
	go func() {
		collector.Start(ctx, time.Hour)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("start blocked the caller")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, err := store.SnapshotAt(context.Background(), fixed)
		if err != nil {
			t.Fatalf("snapshot at: %v", err)
		}
		if stored != nil {
			if stored.PriceUSD != 95000 {
				t.Fatalf("stored snapshot mismatch: %+v", stored)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("no snapshot collected in background")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
