package goAuthClient

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goAuthClient/clock"
	"github.com/MrEthical07/goAuthClient/events"
	"github.com/MrEthical07/goAuthClient/refresh"
	"github.com/MrEthical07/goAuthClient/session"
)

// signedInManager returns a Manager logged in against the fake backend with
// permissions loaded.
func signedInManager(b *testing.B) *Manager {
	b.Helper()
	clk := clock.NewFake(testStart)
	m, err := New().
		WithClock(clk).
		WithBackend(newFakeAPI(clk.Now)).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	require.NoError(b, err)
	b.Cleanup(func() { _ = m.Close() })

	_, err = m.Login(context.Background(), "alice@example.com", "pw", LoginOptions{SkipSettleDelay: true})
	require.NoError(b, err)
	require.Eventually(b, m.Gate().IsReady, 2*time.Second, time.Millisecond)
	return m
}

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricActivityThrottled)
		}
	})
}

func BenchmarkMetricsObserveRefreshLatency(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	d := 180 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Observe(MetricRefreshLatency, d)
	}
}

func BenchmarkBusEmit(b *testing.B) {
	cases := []struct {
		name     string
		handlers int
	}{
		{"one_handler", 1},
		{"eight_handlers", 8},
	}
	for _, tc := range cases {
		b.Run(tc.name, func(b *testing.B) {
			bus := events.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
			calls := 0
			for i := 0; i < tc.handlers; i++ {
				events.On(bus, events.AuthTokenRefreshed, func(events.TokenRefreshed) {
					calls++
				})
			}
			ev := events.TokenRefreshed{ExpiresAt: testStart}
			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				events.Emit(bus, events.AuthTokenRefreshed, ev)
			}
			b.StopTimer()
			if calls != b.N*tc.handlers {
				b.Fatalf("expected %d handler calls, got %d", b.N*tc.handlers, calls)
			}
		})
	}
}

func BenchmarkGateCanParallel(b *testing.B) {
	m := signedInManager(b)
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if !m.Can("kb:read") {
				b.Error("expected kb:read")
				return
			}
		}
	})
}

func BenchmarkGateCanAccessRoute(b *testing.B) {
	m := signedInManager(b)
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.CanAccessRoute("/kb/articles/42")
	}
}

func BenchmarkStoreIsValid(b *testing.B) {
	store := session.NewStore(session.NewMemoryStorage(), session.WithNow(func() time.Time { return testStart }))
	require.NoError(b, store.Save(context.Background(), &session.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    testStart.Add(time.Hour).Unix(),
	}))
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if !store.IsValid(ctx) {
			b.Fatal("expected valid session")
		}
	}
}

// Activity outside the refresh window is throttled; this is the path every
// mouse move takes.
func BenchmarkNotifyActivityThrottledParallel(b *testing.B) {
	m := signedInManager(b)
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.NotifyActivity(refresh.ActivityMouseMove)
		}
	})
}
