package metrics

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "flasharb"

type Metrics struct {
	Attempts        *prometheus.CounterVec
	Aborts          *prometheus.CounterVec
	Plans           *prometheus.CounterVec
	AttemptDuration prometheus.Histogram
	RealizedProfit  *prometheus.CounterVec
}

// New registers the metrics on reg. A nil reg gives working but unregistered metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Execution attempts by outcome",
		}, []string{"outcome"}),
		Aborts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aborts_total",
			Help:      "Aborted attempts by the state they failed in and reason",
		}, []string{"state", "reason"}),
		Plans: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Planning queries by result",
		}, []string{"result"}),
		AttemptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Wall time of one execution attempt",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		RealizedProfit: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_profit_total",
			Help:      "Profit paid to initiators in base token units",
		}, []string{"token"}),
	}
}

// Nop is for callers that don't export metrics.
func Nop() *Metrics {
	return New(nil)
}

func (m *Metrics) ObserveAttempt(start time.Time) {
	m.AttemptDuration.Observe(time.Since(start).Seconds())
}

// AddProfit converts through big.Float; precision loss is fine for a counter.
func (m *Metrics) AddProfit(token string, amount *uint256.Int) {
	f, _ := new(big.Float).SetInt(amount.ToBig()).Float64()
	m.RealizedProfit.WithLabelValues(token).Add(f)
}

// Serve exposes reg on addr until ctx is done.
func Serve(ctx context.Context, addr string, reg prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
