package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/planner"
)

// SkillFunc produces a draft from the accumulated lesson context and the
// raw task. Returning an error fails the task.
type SkillFunc func(lesson map[string]string, task core.Task) (map[string]any, error)

// SkillAgent is an offline agent that derives structured drafts from the
// lesson context without calling a model. It keeps the engine usable in
// tests and demos where no provider credentials exist.
type SkillAgent struct {
	BaseAgent
	skill SkillFunc
}

var _ core.Agent = (*SkillAgent)(nil)

// NewSkillAgent wraps skill under name.
func NewSkillAgent(name, description string, skill SkillFunc) *SkillAgent {
	a := &SkillAgent{BaseAgent: NewBaseAgent(name), skill: skill}
	a.SetDescription(description)
	return a
}

// Execute implements core.Agent.
func (a *SkillAgent) Execute(ctx context.Context, task core.Task) core.TaskResult {
	if err := ctx.Err(); err != nil {
		return core.Failed(err)
	}
	out, err := a.skill(LessonFromTask(task), task)
	if err != nil {
		return core.Failed(err)
	}
	if out == nil {
		out = map[string]any{}
	}
	out["agent"] = a.Name()
	return core.Succeeded(out)
}

// LessonFromTask extracts the lesson context snapshot handed to every agent.
func LessonFromTask(task core.Task) map[string]string {
	out := map[string]string{}
	raw, ok := task.Data["context"].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func phaseOf(task core.Task) planner.Phase {
	p, _ := task.Data["phase"].(string)
	return planner.Phase(p)
}

func or(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// NewSkillAgents returns one offline agent for every name the routing table
// references.
func NewSkillAgents() []core.Agent {
	return []core.Agent{
		NewSkillAgent(planner.AgentCurriculum, "Plans lesson structure and standards alignment", curriculumSkill),
		NewSkillAgent(planner.AgentAssessment, "Outlines assessments and rubrics", assessmentSkill),
		NewSkillAgent(planner.AgentQuiz, "Drafts quiz questions", quizSkill),
		NewSkillAgent(planner.AgentTerrain, "Lays out 3D learning environments", terrainSkill),
		NewSkillAgent(planner.AgentScript, "Writes environment scripts", scriptSkill),
		NewSkillAgent(planner.AgentCodeReview, "Reviews scripts for safety and quality", reviewSkill),
		NewSkillAgent(planner.AgentAnalytics, "Summarizes learner performance", analyticsSkill),
		NewSkillAgent(planner.AgentConversation, "Keeps the conversation going", conversationSkill),
	}
}

func curriculumSkill(l map[string]string, task core.Task) (map[string]any, error) {
	topic := or(l["topic"], "the topic")
	grade := or(l["grade_level"], "general audience")
	if phaseOf(task) == planner.PhaseDirect {
		return map[string]any{
			"alignment": fmt.Sprintf("%s for %s mapped to core %s standards", topic, grade, or(l["subject"], "subject")),
			"standards": []string{"identify key concepts", "apply concepts to new problems"},
		}, nil
	}
	sections := []string{
		"Warm-up: what do you already know about " + topic + "?",
		"Explore: guided activity on " + topic,
		"Explain: key vocabulary and ideas",
		"Wrap-up: exit ticket",
	}
	return map[string]any{
		"lesson_plan": map[string]any{
			"title":      fmt.Sprintf("%s (%s)", topic, grade),
			"subject":    or(l["subject"], "general"),
			"duration":   or(l["duration"], "45 minutes"),
			"objectives": or(l["objectives"], "Students can explain "+topic),
			"sections":   sections,
		},
	}, nil
}

func assessmentSkill(l map[string]string, task core.Task) (map[string]any, error) {
	topic := or(l["topic"], "the topic")
	kind := or(l["assessment_type"], "formative")
	out := map[string]any{
		"assessment_outline": map[string]any{
			"type":     kind,
			"criteria": []string{"understands " + topic, "communicates reasoning"},
		},
	}
	if phaseOf(task) == planner.PhaseDesign {
		out["rubric"] = []string{"beginning", "developing", "proficient", "advanced"}
	}
	return out, nil
}

func quizSkill(l map[string]string, task core.Task) (map[string]any, error) {
	topic := or(l["topic"], "the topic")
	questions := []string{
		"What is the main idea of " + topic + "?",
		"Give one example related to " + topic + ".",
		"Why does " + topic + " matter?",
	}
	if phaseOf(task) == planner.PhaseImplement {
		return map[string]any{"quiz": questions, "assessment_items": len(questions)}, nil
	}
	return map[string]any{"quiz_outline": questions, "questions": len(questions)}, nil
}

func terrainSkill(l map[string]string, _ core.Task) (map[string]any, error) {
	env := or(l["environment"], "classroom island")
	return map[string]any{
		"terrain_layout": map[string]any{
			"environment": env,
			"zones":       []string{"spawn", "learning stations", "challenge area"},
			"class_size":  or(l["class_size"], "30"),
		},
		"environment": env,
	}, nil
}

func scriptSkill(l map[string]string, task core.Task) (map[string]any, error) {
	topic := or(l["topic"], "lesson")
	name := strings.ReplaceAll(strings.ToLower(topic), " ", "_")
	script := fmt.Sprintf("-- %s station\nlocal station = {}\nfunction station.start(player)\n\tprint(\"Welcome to %s\")\nend\nreturn station\n", name, topic)
	if phaseOf(task) == planner.PhaseDesign {
		return map[string]any{"script_design": []string{name + "_station", name + "_checkpoint"}, "terrain_script": name}, nil
	}
	return map[string]any{"scripts": map[string]any{name + ".lua": script}}, nil
}

func reviewSkill(_ map[string]string, task core.Task) (map[string]any, error) {
	issues := []string{}
	if prev, ok := task.Data["previous_output"].(map[string]any); ok {
		if scripts, ok := prev["scripts"].(map[string]any); ok {
			for name, src := range scripts {
				if s, ok := src.(string); ok && strings.Contains(s, "loadstring") {
					issues = append(issues, name+": avoid loadstring")
				}
			}
		}
	}
	return map[string]any{"review": map[string]any{"approved": len(issues) == 0, "issues": issues}}, nil
}

func analyticsSkill(l map[string]string, _ core.Task) (map[string]any, error) {
	topic := or(l["topic"], "recent lessons")
	return map[string]any{
		"insights":        []string{"engagement is highest during hands-on stations for " + topic},
		"recommendations": []string{"add a short review quiz", "offer an extension challenge"},
	}, nil
}

func conversationSkill(l map[string]string, _ core.Task) (map[string]any, error) {
	if topic := l["topic"]; topic != "" {
		return map[string]any{"reply": "Let's keep working on " + topic + "."}, nil
	}
	return map[string]any{"reply": "Tell me what you would like to create."}, nil
}
