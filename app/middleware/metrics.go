package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "wedding_automations"

// RouteGroupOther labels requests outside every configured group
const RouteGroupOther = "other"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route group, matched route and status class",
		},
		[]string{"group", "method", "route", "status_class"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route group",
			// Webhooks answer in milliseconds; operator triggers may dispatch a whole audience
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 15, 60, 300},
		},
		[]string{"group", "method"},
	)

	httpInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "HTTP requests currently being served by route group",
		},
		[]string{"group"},
	)
)

// RouteGroup maps a path prefix to a metrics label
type RouteGroup struct {
	Name   string
	Prefix string
}

// Metrics records request counts, latency and in-flight requests per route group.
// The longest matching prefix wins.
func Metrics(groups ...RouteGroup) fiber.Handler {
	return func(c fiber.Ctx) error {
		group := routeGroup(groups, c.Path())
		start := time.Now()
		inflight := httpInFlight.WithLabelValues(group)
		inflight.Inc()
		defer inflight.Dec()

		err := c.Next()

		route := RouteGroupOther
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}

		httpRequestsTotal.WithLabelValues(group, c.Method(), route, statusClass(c.Response().StatusCode())).Inc()
		httpRequestDuration.WithLabelValues(group, c.Method()).Observe(time.Since(start).Seconds())

		return err
	}
}

func routeGroup(groups []RouteGroup, path string) string {
	name, best := RouteGroupOther, -1
	for _, g := range groups {
		if strings.HasPrefix(path, g.Prefix) && len(g.Prefix) > best {
			name, best = g.Name, len(g.Prefix)
		}
	}
	return name
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
