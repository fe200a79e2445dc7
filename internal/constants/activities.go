package constants

// Activity names used for workflow execution and test registration.
// Workflows invoke activities by name so the worker can register the
// service-backed implementations while tests register stubs.
const (
	ExecuteRetrievalActivity  = "ExecuteRetrieval"
	ExecuteStrategistActivity = "ExecuteStrategist"
	ExecuteCriticActivity     = "ExecuteCritic"
	ExecuteModeratorActivity  = "ExecuteModerator"
	ExecuteSynthesisActivity  = "ExecuteSynthesis"
	ExecuteTutorActivity      = "ExecuteTutor"

	EmitTaskUpdateActivity      = "EmitTaskUpdate"
	UpdateSessionResultActivity = "UpdateSessionResult"
	RecordDebateActivity        = "RecordDebate"
)

// TaskQueue is the temporal task queue the debate worker polls.
const TaskQueue = "socratic-debate"
