package agents

// AgentRole identifies one of the debate pipeline's agents.
type AgentRole string

const (
	RoleStrategist  AgentRole = "strategist"
	RoleCritic      AgentRole = "critic"
	RoleModerator   AgentRole = "moderator"
	RoleSynthesizer AgentRole = "synthesizer"
	RoleTutor       AgentRole = "tutor"
)

// DefaultTemperature returns the sampling bias for a role. The strategist
// runs hot to explore divergent drafts; the critic runs cold for literal,
// conservative fault-finding.
func (r AgentRole) DefaultTemperature() float64 {
	switch r {
	case RoleStrategist:
		return 0.8
	case RoleCritic:
		return 0.1
	case RoleModerator:
		return 0.2
	case RoleSynthesizer:
		return 0.3
	case RoleTutor:
		return 0.5
	default:
		return 0.3
	}
}

func (r AgentRole) String() string { return string(r) }
