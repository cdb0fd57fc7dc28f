package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kaakazini",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kaakazini",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kaakazini",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	jobTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kaakazini",
			Subsystem: "jobs",
			Name:      "transitions_total",
			Help:      "Job lifecycle events by outcome.",
		},
		[]string{"event", "result"},
	)

	paymentAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kaakazini",
			Subsystem: "payments",
			Name:      "stk_push_total",
			Help:      "STK push attempts by outcome.",
		},
		[]string{"result"},
	)

	paymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kaakazini",
			Subsystem: "payments",
			Name:      "stk_push_duration_seconds",
			Help:      "Latency of the payment provider.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kaakazini",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Email and SMS deliveries by channel and outcome.",
		},
		[]string{"channel", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		jobTransitions,
		paymentAttempts,
		paymentDuration,
		notifications,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry on a fiber route.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}

// Middleware records request count and latency per route pattern.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		path := c.Route().Path
		method := strings.ToUpper(c.Method())
		httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		return err
	}
}

func RecordTransition(event string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobTransitions.WithLabelValues(event, result).Inc()
}

// RecordPayment counts an STK push. result is accepted, rejected or failed.
func RecordPayment(result string, duration time.Duration) {
	paymentAttempts.WithLabelValues(result).Inc()
	paymentDuration.Observe(duration.Seconds())
}

func RecordNotification(channel string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	notifications.WithLabelValues(channel, result).Inc()
}
