package synth

import "github.com/hupe1980/dialogmesh/core"

// RecoveryMessage is the softened reply used whenever work failed.
const RecoveryMessage = "I encountered a small issue, but I can help another way."

var greetings = []string{
	"Hi! I can help you design lessons, quizzes, assessments, 3D terrains and scripts. What would you like to create?",
	"Hello! Tell me what you'd like to build today: a lesson, a quiz, an assessment or a learning environment.",
	"Welcome! What are we creating for your students today?",
}

var helpText = "I can create lessons, quizzes and assessments, generate 3D terrains and scripts, " +
	"review code, analyze performance and align content to standards. " +
	"Tell me what you need, and I'll ask for anything that's missing."

var questions = map[core.Field][]string{
	core.FieldGradeLevel: {
		"What grade level is this for?",
		"Which grade are your students in?",
	},
	core.FieldSubject: {
		"Which subject should this cover?",
		"What subject is this for{{if .grade_level}} in {{.grade_level}}{{end}}?",
	},
	core.FieldTopic: {
		"What topic would you like to focus on{{if .subject}} in {{.subject}}{{end}}?",
		"Which topic should we cover{{if .subject}} in {{.subject}}{{end}}?",
	},
	core.FieldContentType: {
		"What should I create: a lesson, a quiz, an assessment, a terrain or a script?",
		"What kind of content do you need: lesson, quiz, assessment, terrain or script?",
	},
}

var confirmations = []string{
	"Here's what I have: {{.summary}}. Shall I start designing?",
	"Got it: {{.summary}}. Ready for me to draft the design?",
}

var revisions = []string{
	"No problem. What would you like to change?",
	"Okay, tell me what to adjust.",
}

var designSummaries = []string{
	"Here's a draft design for {{.summary}}. It covers {{.outputs}}. Say \"yes\" to build it, or tell me what to change.",
	"I've drafted a design for {{.summary}} with {{.outputs}}. Shall I build it, or would you like changes?",
}

var implementSummaries = []string{
	"The content for {{.summary}} is built: {{.outputs}}. Take a look and confirm when you're happy with it.",
	"I've built {{.outputs}} for {{.summary}}. Review it and let me know if it's ready.",
}

var completions = []string{
	"All done! Your {{.content_type}} on {{.topic}} is complete. Want to create something else?",
	"Your {{.content_type}} on {{.topic}} is finished. What should we work on next?",
}

var pauses = []string{
	"No problem, we'll pick this up whenever you're ready.",
	"Sure, let's take a break. Just say the word when you want to continue.",
}

var awaiting = map[core.State][]string{
	core.StateDesigning: {
		"The design for {{.summary}} is ready for review. Say \"yes\" to build it or tell me what to change.",
	},
	core.StateReviewing: {
		"Let me know if the content is ready, or what you'd like to change.",
	},
	core.StateCompleted: {
		"Your {{.content_type}} is complete. Want to create something else?",
	},
}

var (
	allSucceeded = []string{"Done! I put together {{.outputs}}.", "Here you go: {{.outputs}}."}
	someFailed   = []string{"I finished {{.successes}} of {{.total}} parts: {{.outputs}}. Some pieces need another try."}
)

var defaultedNote = " I filled in defaults for {{.defaulted}} so we could keep going."
