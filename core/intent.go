package core

// Intent is the classified purpose of a user turn. The set is closed; any
// classifier output outside it must be mapped to IntentUnknown.
type Intent string

const (
	IntentCreateLesson       Intent = "create_lesson"
	IntentCreateQuiz         Intent = "create_quiz"
	IntentCreateAssessment   Intent = "create_assessment"
	IntentGenerateTerrain    Intent = "generate_terrain"
	IntentGenerateScript     Intent = "generate_script"
	IntentReviewCode         Intent = "review_code"
	IntentAnalyzePerformance Intent = "analyze_performance"
	IntentAlignCurriculum    Intent = "align_curriculum"
	IntentModifyContent      Intent = "modify_content"
	IntentGreeting           Intent = "greeting"
	IntentHelp               Intent = "help"
	IntentConfirm            Intent = "confirm"
	IntentReject             Intent = "reject"
	IntentPause              Intent = "pause"
	IntentUnknown            Intent = "unknown"
)

// Intents returns the closed intent set.
func Intents() []Intent {
	return []Intent{
		IntentCreateLesson,
		IntentCreateQuiz,
		IntentCreateAssessment,
		IntentGenerateTerrain,
		IntentGenerateScript,
		IntentReviewCode,
		IntentAnalyzePerformance,
		IntentAlignCurriculum,
		IntentModifyContent,
		IntentGreeting,
		IntentHelp,
		IntentConfirm,
		IntentReject,
		IntentPause,
		IntentUnknown,
	}
}

// ParseIntent maps a free-form label onto the closed set. Unrecognized labels
// become IntentUnknown.
func ParseIntent(s string) Intent {
	for _, i := range Intents() {
		if string(i) == s {
			return i
		}
	}
	return IntentUnknown
}

// IsTask reports whether the intent asks for content to be produced through
// the requirements lifecycle.
func (i Intent) IsTask() bool {
	switch i {
	case IntentCreateLesson, IntentCreateQuiz, IntentCreateAssessment,
		IntentGenerateTerrain, IntentGenerateScript:
		return true
	default:
		return false
	}
}

// IsDirect reports whether the intent is served immediately by agents
// without gathering lesson requirements first.
func (i Intent) IsDirect() bool {
	switch i {
	case IntentReviewCode, IntentAnalyzePerformance, IntentAlignCurriculum:
		return true
	default:
		return false
	}
}
