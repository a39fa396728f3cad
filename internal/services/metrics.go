package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	answerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "services_answer_requests_total",
		Help: "Answer requests by outcome",
	}, []string{"status"})

	uploadRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "services_upload_requests_total",
		Help: "Document uploads by mode and outcome",
	}, []string{"mode", "status"})

	ingestEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "services_ingest_events_total",
		Help: "Async ingest events by outcome",
	}, []string{"status"})
)
