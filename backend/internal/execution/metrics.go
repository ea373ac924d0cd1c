package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_tasks_total",
		Help: "Tasks handled by the execution service, by type and result",
	}, []string{"type", "result"})

	requestsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "execution_requests_rejected_total",
		Help: "Requests rejected before reaching a handler, by reason",
	}, []string{"reason"})
)
