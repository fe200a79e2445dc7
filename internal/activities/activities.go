package activities

import (
	"go.uber.org/zap"

	"github.com/socraticlabs/tutor-orchestrator/internal/agents"
	"github.com/socraticlabs/tutor-orchestrator/internal/config"
	"github.com/socraticlabs/tutor-orchestrator/internal/db"
	"github.com/socraticlabs/tutor-orchestrator/internal/embeddings"
	"github.com/socraticlabs/tutor-orchestrator/internal/llm"
	"github.com/socraticlabs/tutor-orchestrator/internal/session"
	"github.com/socraticlabs/tutor-orchestrator/internal/streaming"
	"github.com/socraticlabs/tutor-orchestrator/internal/vectordb"
)

// Activities is the service context shared by all activity implementations.
// It is constructed once at process start and registered on the worker; the
// workflow itself carries no service handles.
type Activities struct {
	llm      llm.Generator
	embedder embeddings.Embedder
	search   vectordb.Searcher
	exec     *agents.Executor
	streams  *streaming.Manager
	sessions *session.Manager
	recorder *db.Recorder
	cfg      *config.Features
	logger   *zap.Logger
}

// Deps bundles the collaborators for NewActivities. Sessions and recorder
// may be nil; the corresponding activities become no-ops.
type Deps struct {
	LLM      llm.Generator
	Embedder embeddings.Embedder
	Search   vectordb.Searcher
	Executor *agents.Executor
	Streams  *streaming.Manager
	Sessions *session.Manager
	Recorder *db.Recorder
	Config   *config.Features
	Logger   *zap.Logger
}

// NewActivities wires the activity set.
func NewActivities(d Deps) *Activities {
	cfg := d.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	exec := d.Executor
	if exec == nil {
		exec = agents.NewExecutor(agents.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay(),
		}, logger)
	}
	return &Activities{
		llm:      d.LLM,
		embedder: d.Embedder,
		search:   d.Search,
		exec:     exec,
		streams:  d.Streams,
		sessions: d.Sessions,
		recorder: d.Recorder,
		cfg:      cfg,
		logger:   logger,
	}
}
