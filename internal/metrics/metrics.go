package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_planner_passes_total",
			Help: "Generation passes by pass and outcome",
		},
		[]string{"pass", "status"},
	)

	PassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trip_planner_pass_duration_seconds",
			Help:    "Duration of a generation pass in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
		[]string{"pass"},
	)

	ToolInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_planner_tool_invocations_total",
			Help: "Tool invocations by tool and outcome",
		},
		[]string{"tool", "status"},
	)

	ToolDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "trip_planner_tool_duration_seconds",
			Help: "Duration of tool execution in seconds",
		},
		[]string{"tool"},
	)

	ToolRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_planner_tool_repairs_total",
			Help: "Tool-call argument repairs by outcome",
		},
		[]string{"tool", "status"},
	)

	ImageValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_planner_image_validations_total",
			Help: "Image liveness checks by result",
		},
		[]string{"result"},
	)

	ActiveChats = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trip_planner_active_chats",
			Help: "Chat requests currently streaming",
		},
	)
)
