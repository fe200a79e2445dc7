package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	DebatesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socratic_debates_started_total",
			Help: "Total number of debate workflows started",
		},
	)

	DebatesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socratic_debates_completed_total",
			Help: "Total number of debate workflows completed",
		},
		[]string{"status", "decision"},
	)

	DebateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "socratic_debate_duration_seconds",
			Help:    "End-to-end debate workflow duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DebateRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "socratic_debate_rounds",
			Help:    "Number of debate rounds per workflow",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8, 10},
		},
	)

	ConvergenceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "socratic_convergence_score",
			Help:    "Final convergence score per debate",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	// Agent metrics
	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socratic_agent_executions_total",
			Help: "Total number of agent step executions (including retries)",
		},
		[]string{"agent"},
	)

	AgentErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socratic_agent_errors_total",
			Help: "Total number of failed agent step attempts",
		},
		[]string{"agent", "class"},
	)

	AgentExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socratic_agent_execution_duration_seconds",
			Help:    "Agent step duration in seconds, retries included",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent"},
	)

	// Retrieval metrics
	RetrievalQuality = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "socratic_retrieval_quality_score",
			Help:    "Retrieval quality heuristic per query",
			Buckets: []float64{0.0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	SpeculativeQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socratic_speculative_queries_total",
			Help: "Total number of speculative retrieval reframings issued",
		},
	)

	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socratic_vector_searches_total",
			Help: "Total number of vector store searches",
		},
		[]string{"status"},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socratic_llm_requests_total",
			Help: "Total number of LLM generation requests",
		},
		[]string{"status"},
	)

	LLMTokensUsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socratic_llm_tokens_total",
			Help: "Total tokens consumed across all LLM calls",
		},
	)

	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socratic_embedding_cache_hits_total",
			Help: "Embedding cache hits",
		},
	)

	EmbeddingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socratic_embedding_cache_misses_total",
			Help: "Embedding cache misses",
		},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socratic_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "socratic_sessions_active",
			Help: "Number of active sessions",
		},
	)

	// Streaming metrics
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "socratic_stream_subscribers",
			Help: "Number of live event stream subscribers",
		},
	)

	StreamEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socratic_stream_events_published_total",
			Help: "Total number of progress events published",
		},
		[]string{"status"},
	)
)
