package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)
}

func TestObserveNetworkRequestStatus(t *testing.T) {
	before := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("postgres", "tips_get", "tips", "error"))
	ObserveNetworkRequest("postgres", "tips_get", "tips", time.Now(), errors.New("boom"))
	after := testutil.ToFloat64(NetworkRequestTotal.WithLabelValues("postgres", "tips_get", "tips", "error"))
	if after != before+1 {
		t.Fatalf("ожидали рост счётчика ошибок на 1, было %v стало %v", before, after)
	}
}

func TestAddPushTickets(t *testing.T) {
	okBefore := testutil.ToFloat64(PushTicketsTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(PushTicketsTotal.WithLabelValues("error"))
	AddPushTickets(3, 1)
	if got := testutil.ToFloat64(PushTicketsTotal.WithLabelValues("ok")); got != okBefore+3 {
		t.Fatalf("ok: ожидали %v, получили %v", okBefore+3, got)
	}
	if got := testutil.ToFloat64(PushTicketsTotal.WithLabelValues("error")); got != errBefore+1 {
		t.Fatalf("error: ожидали %v, получили %v", errBefore+1, got)
	}
}
