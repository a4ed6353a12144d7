package metrics_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/matejnovak/govsicrawl/internal/metrics"
)

func TestEmptyAddrReturnsImmediately(t *testing.T) {
	m := metrics.New()
	if err := m.Serve(context.Background(), ""); err != nil {
		t.Fatalf("expected nil error for empty addr, got %v", err)
	}
}

func TestRecordCompletionIncrementsLabelledCounter(t *testing.T) {
	m := metrics.New()
	m.RecordCompletion("HTML")
	m.RecordCompletion("HTML")
	m.RecordCompletion("IMAGE")

	body := scrapeRegistry(t, m)
	if !strings.Contains(body, `govsicrawl_pages_completed_total{page_type="HTML"} 2`) {
		t.Errorf("expected HTML counter at 2, body: %s", body)
	}
	if !strings.Contains(body, `govsicrawl_pages_completed_total{page_type="IMAGE"} 1`) {
		t.Errorf("expected IMAGE counter at 1, body: %s", body)
	}
}

func scrapeRegistry(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	addr := "127.0.0.1:19876"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.Serve(ctx, addr)
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}
