package app

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
	taskWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_writes_total",
			Help: "Total task create/update requests by outcome",
		},
		[]string{"op", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(httpRequests)
	prometheus.MustRegister(taskWrites)
}

// countRequests records every request against its route template, not
// the raw path, to keep the label set bounded.
func countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status()),
		).Inc()
		if c.Request.Method == "POST" || c.Request.Method == "PUT" {
			if op := taskOp(route); op != "" {
				outcome := "ok"
				if c.Writer.Status() >= 400 {
					outcome = "error"
				}
				taskWrites.WithLabelValues(op, outcome).Inc()
			}
		}
	}
}

func taskOp(route string) string {
	switch route {
	case "/api/v1/tasks":
		return "create"
	case "/api/v1/tasks/:user":
		return "create_own"
	case "/api/v1/tasks/:task":
		return "update_own"
	case "/api/v1/tasks/:task/admin":
		return "update"
	}
	return ""
}

func metricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
