package nlu

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
)

// Confidence levels reported by the rule understander.
const (
	keywordConfidence = 0.85
	unknownConfidence = 0.3
	factConfidence    = 0.8
)

type intentRule struct {
	intent core.Intent
	re     *regexp.Regexp
}

// Order matters: the first match wins, so more specific phrases come first.
var intentRules = []intentRule{
	{core.IntentPause, regexp.MustCompile(`\b(pause|take a break|continue later|stop for now|brb)\b`)},
	{core.IntentHelp, regexp.MustCompile(`\b(help|what can you do|how does this work)\b`)},
	{core.IntentReviewCode, regexp.MustCompile(`\b(review|check|audit)\b.*\b(code|script|scripts)\b`)},
	{core.IntentAnalyzePerformance, regexp.MustCompile(`\b(analy[sz]e|analytics|performance|progress report|how are my students)\b`)},
	{core.IntentAlignCurriculum, regexp.MustCompile(`\b(align|alignment|standards|common core|ngss)\b`)},
	{core.IntentCreateAssessment, regexp.MustCompile(`\b(assessment|exam|test|rubric)\b`)},
	{core.IntentCreateQuiz, regexp.MustCompile(`\bquiz(zes)?\b`)},
	{core.IntentGenerateTerrain, regexp.MustCompile(`\b(terrain|landscape|island|3d (world|environment|map))\b`)},
	{core.IntentGenerateScript, regexp.MustCompile(`\b(script|scripts|code|program)\b`)},
	{core.IntentCreateLesson, regexp.MustCompile(`\b(lesson|class|unit|teach|course)\b`)},
	{core.IntentModifyContent, regexp.MustCompile(`\b(change|modify|revise|edit|update|adjust|tweak)\b`)},
	{core.IntentReject, regexp.MustCompile(`^(no|nope|nah|not (quite|really|yet)|that's wrong)\b`)},
	{core.IntentConfirm, regexp.MustCompile(`^(yes|yep|yeah|sure|ok|okay|confirm|approved?|looks good|sounds good|go ahead|perfect|great)\b`)},
	{core.IntentGreeting, regexp.MustCompile(`^(hi|hello|hey|good (morning|afternoon|evening)|greetings)\b`)},
}

var (
	gradeOrdinal = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)[\s-]*grade(?:rs)?\b`)
	gradeNumber  = regexp.MustCompile(`\bgrade\s*(\d{1,2})\b`)
	gradeNamed   = regexp.MustCompile(`\b(kindergarten|pre-?k|elementary( school)?|middle school|high school|college|university)\b`)
	topicRe      = regexp.MustCompile(`\b(?:about|on|covering|topic(?: is|:)?)\s+([a-z0-9][a-z0-9 ,'-]*?)(?:\s+for\b|\s+in\b|\s+with\b|[.!?;]|$)`)
	durationRe   = regexp.MustCompile(`\b(\d{1,3})\s*(minutes?|mins?|hours?|hrs?)\b`)
	classSizeRe  = regexp.MustCompile(`\b(\d{1,3})\s*(?:students|kids|learners|pupils)\b`)
	difficultyRe = regexp.MustCompile(`\b(easy|medium|hard|beginner|intermediate|advanced|challenging)\b`)
	styleRe      = regexp.MustCompile(`\b(visual|auditory|hands-on|kinesthetic|reading/writing)\b`)
	assessTypeRe = regexp.MustCompile(`\b(formative|summative|multiple choice|open-ended|project-based)\b`)
	accessRe     = regexp.MustCompile(`\b(dyslexia|adhd|colorblind|color-blind|hearing impaired|visually impaired|ell|esl)\b`)
	objectiveRe  = regexp.MustCompile(`\b(?:students (?:should|will) (?:be able to )?)([a-z0-9 ,'-]+?)(?:[.!?;]|$)`)
)

var subjects = map[string]string{
	"math": "math", "mathematics": "math", "algebra": "math", "geometry": "math",
	"science": "science", "biology": "biology", "chemistry": "chemistry", "physics": "physics",
	"history": "history", "geography": "geography", "english": "english", "reading": "english",
	"writing": "english", "art": "art", "music": "music", "coding": "computer science",
	"programming": "computer science", "computer science": "computer science",
	"social studies": "social studies", "economics": "economics", "spanish": "spanish",
}

var subjectRe = func() *regexp.Regexp {
	keys := make([]string, 0, len(subjects))
	for k := range subjects {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	// Longest alternatives first so "computer science" beats "science".
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return regexp.MustCompile(`\b(` + strings.Join(keys, "|") + `)\b`)
}()

// RuleUnderstander is a deterministic keyword and pattern based Understander.
type RuleUnderstander struct{}

var _ core.Understander = RuleUnderstander{}

// NewRuleUnderstander creates a RuleUnderstander.
func NewRuleUnderstander() RuleUnderstander { return RuleUnderstander{} }

// Understand implements core.Understander.
func (RuleUnderstander) Understand(_ context.Context, text string, _ []core.Turn, accumulated core.LessonContext) (core.Understanding, error) {
	norm := normalize(text)
	u := core.Understanding{Intent: core.IntentUnknown, Confidence: unknownConfidence}
	if norm == "" {
		return u, nil
	}
	if intent, ok := DetectIntent(norm); ok {
		u.Intent = intent
		u.Confidence = keywordConfidence
	}
	u.Entities = ExtractFacts(norm)

	for _, f := range core.RequiredFields() {
		if accumulated.Has(f) {
			continue
		}
		if _, ok := u.Entities[string(f)]; ok {
			continue
		}
		if f == core.FieldContentType && u.Intent.IsTask() {
			continue
		}
		u.ClarificationsNeeded = append(u.ClarificationsNeeded, string(f))
	}
	if u.Intent == core.IntentUnknown && len(u.Entities) == 0 {
		u.Suggestions = []string{"Create a lesson", "Create a quiz", "Generate a terrain"}
	}
	return u, nil
}

// DetectIntent matches normalized text against the keyword rules.
func DetectIntent(norm string) (core.Intent, bool) {
	for _, r := range intentRules {
		if r.re.MatchString(norm) {
			return r.intent, true
		}
	}
	return core.IntentUnknown, false
}

// ExtractFacts pulls lesson facts out of normalized text.
func ExtractFacts(norm string) map[string]core.Fact {
	facts := map[string]core.Fact{}
	put := func(f core.Field, v string) {
		v = strings.TrimSpace(v)
		if v != "" {
			facts[string(f)] = core.Fact{Value: v, Confidence: factConfidence}
		}
	}

	if m := gradeOrdinal.FindStringSubmatch(norm); m != nil {
		put(core.FieldGradeLevel, m[1]+suffix(m[1])+" grade")
	} else if m := gradeNumber.FindStringSubmatch(norm); m != nil {
		put(core.FieldGradeLevel, m[1]+suffix(m[1])+" grade")
	} else if m := gradeNamed.FindStringSubmatch(norm); m != nil {
		put(core.FieldGradeLevel, m[1])
	}
	if m := subjectRe.FindStringSubmatch(norm); m != nil {
		put(core.FieldSubject, subjects[m[1]])
	}
	if m := topicRe.FindStringSubmatch(norm); m != nil {
		put(core.FieldTopic, m[1])
	}
	if m := durationRe.FindStringSubmatch(norm); m != nil {
		put(core.FieldDuration, m[1]+" "+unit(m[2]))
	}
	if m := classSizeRe.FindStringSubmatch(norm); m != nil {
		put(core.FieldClassSize, m[1])
	}
	if m := difficultyRe.FindStringSubmatch(norm); m != nil {
		put(core.FieldDifficulty, m[1])
	}
	if m := styleRe.FindStringSubmatch(norm); m != nil {
		put(core.FieldLearningStyle, m[1])
	}
	if m := assessTypeRe.FindStringSubmatch(norm); m != nil {
		put(core.FieldAssessmentType, m[1])
	}
	if m := accessRe.FindStringSubmatch(norm); m != nil {
		put(core.FieldAccessibility, m[1])
	}
	if m := objectiveRe.FindStringSubmatch(norm); m != nil {
		put(core.FieldObjectives, m[1])
	}
	return facts
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func suffix(n string) string {
	if len(n) >= 2 && n[len(n)-2] == '1' {
		return "th"
	}
	switch n[len(n)-1] {
	case '1':
		return "st"
	case '2':
		return "nd"
	case '3':
		return "rd"
	default:
		return "th"
	}
}

func unit(u string) string {
	if strings.HasPrefix(u, "h") {
		return "hours"
	}
	return "minutes"
}
