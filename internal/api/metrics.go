package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal counts handled requests by route pattern and status.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepsrv_http_requests_total",
			Help: "Total number of HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// stepsCompiledTotal counts compile requests per step kind; result is ok, invalid or error.
	stepsCompiledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepsrv_steps_compiled_total",
			Help: "Total number of step compilations by kind and result",
		},
		[]string{"kind", "result"},
	)

	// processesTotal counts processes executed locally or dispatched to the broker.
	processesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepsrv_processes_total",
			Help: "Total number of processes by mode (execute, dispatch) and status",
		},
		[]string{"mode", "status"},
	)
)
