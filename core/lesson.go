package core

// Field names one fixed slot of the LessonContext.
type Field string

// Required fields, in clarification priority order.
const (
	FieldGradeLevel  Field = "grade_level"
	FieldSubject     Field = "subject"
	FieldTopic       Field = "topic"
	FieldContentType Field = "content_type"
)

// Optional fields.
const (
	FieldDuration       Field = "duration"
	FieldDifficulty     Field = "difficulty"
	FieldLearningStyle  Field = "learning_style"
	FieldAccessibility  Field = "accessibility"
	FieldObjectives     Field = "objectives"
	FieldAssessmentType Field = "assessment_type"
	FieldEnvironment    Field = "environment"
	FieldClassSize      Field = "class_size"
)

// RequiredFields returns the required fields ordered by importance.
func RequiredFields() []Field {
	return []Field{FieldGradeLevel, FieldSubject, FieldTopic, FieldContentType}
}

// OptionalFields returns the optional fields.
func OptionalFields() []Field {
	return []Field{
		FieldDuration,
		FieldDifficulty,
		FieldLearningStyle,
		FieldAccessibility,
		FieldObjectives,
		FieldAssessmentType,
		FieldEnvironment,
		FieldClassSize,
	}
}

// ParseField resolves a fact name to a fixed field. ok is false for names
// that belong in the extension map.
func ParseField(name string) (Field, bool) {
	for _, f := range RequiredFields() {
		if string(f) == name {
			return f, true
		}
	}
	for _, f := range OptionalFields() {
		if string(f) == name {
			return f, true
		}
	}
	return "", false
}

// IsRequired reports whether f is one of the required fields.
func (f Field) IsRequired() bool {
	for _, r := range RequiredFields() {
		if r == f {
			return true
		}
	}
	return false
}

// Label returns a human readable label for the field.
func (f Field) Label() string {
	switch f {
	case FieldGradeLevel:
		return "grade level"
	case FieldContentType:
		return "content type"
	case FieldLearningStyle:
		return "learning style"
	case FieldAssessmentType:
		return "assessment type"
	case FieldClassSize:
		return "class size"
	default:
		return string(f)
	}
}

// LessonContext is the structured context accumulated over a conversation.
// Completeness scoring operates over the fixed fields only; Extensions
// carries truly dynamic custom data.
type LessonContext struct {
	GradeLevel  string `json:"grade_level,omitempty" yaml:"grade_level,omitempty"`
	Subject     string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Topic       string `json:"topic,omitempty" yaml:"topic,omitempty"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`

	Duration       string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Difficulty     string `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	LearningStyle  string `json:"learning_style,omitempty" yaml:"learning_style,omitempty"`
	Accessibility  string `json:"accessibility,omitempty" yaml:"accessibility,omitempty"`
	Objectives     string `json:"objectives,omitempty" yaml:"objectives,omitempty"`
	AssessmentType string `json:"assessment_type,omitempty" yaml:"assessment_type,omitempty"`
	Environment    string `json:"environment,omitempty" yaml:"environment,omitempty"`
	ClassSize      string `json:"class_size,omitempty" yaml:"class_size,omitempty"`

	// Confidence records the confidence of the fact that set each field.
	Confidence map[Field]float64 `json:"confidence,omitempty" yaml:"-"`
	// Extensions holds facts that do not map to a fixed field.
	Extensions map[string]string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
}

// Get returns the value of a fixed field.
func (c *LessonContext) Get(f Field) string {
	switch f {
	case FieldGradeLevel:
		return c.GradeLevel
	case FieldSubject:
		return c.Subject
	case FieldTopic:
		return c.Topic
	case FieldContentType:
		return c.ContentType
	case FieldDuration:
		return c.Duration
	case FieldDifficulty:
		return c.Difficulty
	case FieldLearningStyle:
		return c.LearningStyle
	case FieldAccessibility:
		return c.Accessibility
	case FieldObjectives:
		return c.Objectives
	case FieldAssessmentType:
		return c.AssessmentType
	case FieldEnvironment:
		return c.Environment
	case FieldClassSize:
		return c.ClassSize
	default:
		return ""
	}
}

// Set assigns a fixed field. Unknown fields are ignored.
func (c *LessonContext) Set(f Field, v string) {
	switch f {
	case FieldGradeLevel:
		c.GradeLevel = v
	case FieldSubject:
		c.Subject = v
	case FieldTopic:
		c.Topic = v
	case FieldContentType:
		c.ContentType = v
	case FieldDuration:
		c.Duration = v
	case FieldDifficulty:
		c.Difficulty = v
	case FieldLearningStyle:
		c.LearningStyle = v
	case FieldAccessibility:
		c.Accessibility = v
	case FieldObjectives:
		c.Objectives = v
	case FieldAssessmentType:
		c.AssessmentType = v
	case FieldEnvironment:
		c.Environment = v
	case FieldClassSize:
		c.ClassSize = v
	}
}

// Has reports whether a fixed field holds a non-empty value.
func (c *LessonContext) Has(f Field) bool { return c.Get(f) != "" }

// HasAny reports whether any fixed field has been set.
func (c *LessonContext) HasAny() bool {
	for _, f := range RequiredFields() {
		if c.Has(f) {
			return true
		}
	}
	for _, f := range OptionalFields() {
		if c.Has(f) {
			return true
		}
	}
	return false
}

// Values flattens the set fields and extensions into a single map.
func (c *LessonContext) Values() map[string]string {
	out := make(map[string]string)
	for _, f := range RequiredFields() {
		if v := c.Get(f); v != "" {
			out[string(f)] = v
		}
	}
	for _, f := range OptionalFields() {
		if v := c.Get(f); v != "" {
			out[string(f)] = v
		}
	}
	for k, v := range c.Extensions {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	return out
}

// Clone returns a deep copy.
func (c LessonContext) Clone() LessonContext {
	clone := c
	if c.Confidence != nil {
		clone.Confidence = make(map[Field]float64, len(c.Confidence))
		for k, v := range c.Confidence {
			clone.Confidence[k] = v
		}
	}
	if c.Extensions != nil {
		clone.Extensions = make(map[string]string, len(c.Extensions))
		for k, v := range c.Extensions {
			clone.Extensions[k] = v
		}
	}
	return clone
}
