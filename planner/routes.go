package planner

import "github.com/hupe1980/dialogmesh/core"

// Agent names known to the routing table.
const (
	AgentCurriculum   = "curriculum"
	AgentAssessment   = "assessment"
	AgentQuiz         = "quiz"
	AgentTerrain      = "terrain"
	AgentScript       = "script"
	AgentCodeReview   = "code_review"
	AgentAnalytics    = "analytics"
	AgentConversation = "conversation"
)

// KnownAgents lists every agent name a plan may reference.
func KnownAgents() []string {
	return []string{
		AgentCurriculum, AgentAssessment, AgentQuiz, AgentTerrain,
		AgentScript, AgentCodeReview, AgentAnalytics, AgentConversation,
	}
}

// Mode is the coordination style a route asks for.
type Mode string

const (
	ModeWorkflow       Mode = "workflow"
	ModeCollaborative  Mode = "collaborative"
	ModeConversational Mode = "conversational"
	ModeAdaptive       Mode = "adaptive"
)

// Order maps a mode onto an execution order.
func (m Mode) Order() ExecutionOrder {
	switch m {
	case ModeWorkflow:
		return OrderSequential
	case ModeCollaborative:
		return OrderParallel
	default:
		return OrderAdaptive
	}
}

// Route is one routing entry: who runs and how.
type Route struct {
	Primary    string
	Supporting []string
	Mode       Mode
	// DependsOnPrimary lists supporting agents that need the primary's
	// output. Only consulted in adaptive mode.
	DependsOnPrimary []string
	Fallbacks        []string
	Outputs          []string
}

// Descriptor carries everything the planner knows about an intent.
type Descriptor struct {
	// Design is the route used while designing, or the only route of a
	// direct intent.
	Design Route
	// Implement is the route used once a design was approved.
	Implement Route
	// Direct intents run immediately without gathering requirements.
	Direct bool
	// ContentType is the content type a task intent implies.
	ContentType string
}

var conversationRoute = Route{
	Primary: AgentConversation,
	Mode:    ModeConversational,
	Outputs: []string{"reply"},
}

// Describe returns the routing descriptor for intent. Every intent of the
// closed set has a case; anything else gets the conversational fallback.
func Describe(intent core.Intent) Descriptor {
	fallback := []string{AgentConversation}
	switch intent {
	case core.IntentCreateLesson:
		return Descriptor{
			ContentType: "lesson",
			Design: Route{
				Primary: AgentCurriculum, Supporting: []string{AgentAssessment, AgentQuiz},
				Mode: ModeCollaborative, Fallbacks: fallback,
				Outputs: []string{"lesson_plan", "assessment_outline", "quiz_outline"},
			},
			Implement: Route{
				Primary: AgentScript, Supporting: []string{AgentTerrain, AgentQuiz},
				Mode: ModeWorkflow, Fallbacks: fallback,
				Outputs: []string{"scripts", "environment", "quiz"},
			},
		}
	case core.IntentCreateQuiz:
		return Descriptor{
			ContentType: "quiz",
			Design: Route{
				Primary: AgentQuiz, Supporting: []string{AgentAssessment},
				Mode: ModeAdaptive, Fallbacks: fallback,
				Outputs: []string{"quiz_outline", "rubric"},
			},
			Implement: Route{
				Primary: AgentScript, Mode: ModeWorkflow, Fallbacks: fallback,
				Outputs: []string{"quiz_scripts"},
			},
		}
	case core.IntentCreateAssessment:
		return Descriptor{
			ContentType: "assessment",
			Design: Route{
				Primary: AgentAssessment, Supporting: []string{AgentCurriculum, AgentQuiz},
				Mode: ModeAdaptive, DependsOnPrimary: []string{AgentQuiz}, Fallbacks: fallback,
				Outputs: []string{"assessment_outline", "alignment", "questions"},
			},
			Implement: Route{
				Primary: AgentQuiz, Mode: ModeWorkflow, Fallbacks: fallback,
				Outputs: []string{"assessment_items"},
			},
		}
	case core.IntentGenerateTerrain:
		return Descriptor{
			ContentType: "terrain",
			Design: Route{
				Primary: AgentTerrain, Supporting: []string{AgentScript},
				Mode: ModeWorkflow, Fallbacks: fallback,
				Outputs: []string{"terrain_layout", "terrain_script"},
			},
			Implement: Route{
				Primary: AgentScript, Supporting: []string{AgentCodeReview},
				Mode: ModeWorkflow, Fallbacks: fallback,
				Outputs: []string{"scripts", "review"},
			},
		}
	case core.IntentGenerateScript:
		return Descriptor{
			ContentType: "script",
			Design: Route{
				Primary: AgentScript, Supporting: []string{AgentCodeReview},
				Mode: ModeWorkflow, Fallbacks: fallback,
				Outputs: []string{"script_design", "review"},
			},
			Implement: Route{
				Primary: AgentScript, Supporting: []string{AgentCodeReview},
				Mode: ModeWorkflow, Fallbacks: fallback,
				Outputs: []string{"scripts", "review"},
			},
		}
	case core.IntentReviewCode:
		return Descriptor{
			Direct: true,
			Design: Route{
				Primary: AgentCodeReview, Mode: ModeWorkflow, Fallbacks: fallback,
				Outputs: []string{"review"},
			},
		}
	case core.IntentAnalyzePerformance:
		return Descriptor{
			Direct: true,
			Design: Route{
				Primary: AgentAnalytics, Supporting: []string{AgentCurriculum},
				Mode: ModeCollaborative, Fallbacks: fallback,
				Outputs: []string{"insights", "recommendations"},
			},
		}
	case core.IntentAlignCurriculum:
		return Descriptor{
			Direct: true,
			Design: Route{
				Primary: AgentCurriculum, Supporting: []string{AgentAssessment},
				Mode: ModeAdaptive, Fallbacks: fallback,
				Outputs: []string{"alignment", "standards"},
			},
		}
	case core.IntentModifyContent, core.IntentGreeting, core.IntentHelp,
		core.IntentConfirm, core.IntentReject, core.IntentPause, core.IntentUnknown:
		return Descriptor{Design: conversationRoute, Implement: conversationRoute}
	default:
		return Descriptor{Design: conversationRoute, Implement: conversationRoute}
	}
}
