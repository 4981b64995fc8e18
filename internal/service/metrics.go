package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики очереди и утверждений.
var (
	submissionsStagedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vm_submissions_staged_total",
		Help: "Количество заявок, поставленных в очередь на проверку.",
	}, []string{"kind"})

	submissionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_submissions_rejected_total",
		Help: "Количество отклонённых заявок.",
	})

	approvalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vm_approvals_total",
		Help: "Количество утверждений по результату.",
	}, []string{"result"})

	approvalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vm_approval_duration_seconds",
		Help:    "Длительность утверждения заявки.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})

	catalogRecordsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vm_catalog_records_written_total",
		Help: "Количество записей каталога, созданных или объединённых при утверждении.",
	}, []string{"op"})

	approvalJobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vm_approval_jobs_running",
		Help: "Количество выполняющихся заданий утверждения.",
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_cache_hits_total",
		Help: "Количество попаданий в кэш заявок.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vm_cache_misses_total",
		Help: "Количество промахов кэша заявок.",
	})
)
