package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sensorPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solanum_sensor_polls_total",
		Help: "Sensor polls against the Pi, by result.",
	}, []string{"result"})

	analyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solanum_analyses_total",
		Help: "Plant analyses, by result.",
	}, []string{"result"})

	commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solanum_commands_total",
		Help: "Executed actuator commands, by type and result.",
	}, []string{"type", "result"})

	piRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solanum_pi_requests_total",
		Help: "Requests to the Pi service, by endpoint and result.",
	}, []string{"endpoint", "result"})

	wsClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "solanum_ws_clients",
		Help: "Connected WebSocket clients.",
	})
)

func init() {
	prometheus.MustRegister(sensorPolls, analyses, commands, piRequests, wsClients)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveSensorPoll(err error) { sensorPolls.WithLabelValues(result(err)).Inc() }

func ObserveAnalysis(err error) { analyses.WithLabelValues(result(err)).Inc() }

func ObserveCommand(commandType string, success bool) {
	r := "ok"
	if !success {
		r = "error"
	}
	commands.WithLabelValues(commandType, r).Inc()
}

func ObservePiRequest(endpoint string, err error) {
	piRequests.WithLabelValues(endpoint, result(err)).Inc()
}

func SetWebSocketClients(n int) { wsClients.Set(float64(n)) }

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
