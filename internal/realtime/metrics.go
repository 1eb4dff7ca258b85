package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	realtimeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backoffice_realtime_sessions",
		Help: "Websocket sessions connected to this instance.",
	})

	realtimeFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_realtime_frames_total",
		Help: "Realtime frames by outcome.",
	}, []string{"outcome"})
)
