package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/dialogmesh/accumulator"
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/nlu"
	"github.com/hupe1980/dialogmesh/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan [message]",
	Short: "Show how a message would be routed, without running agents",
	Long: `Interpret a single message with the rule understander and print the
orchestration plan the planner would build for it.

Examples:
  dialogmesh plan "create a quiz about cells for 7th grade science"
  dialogmesh plan "review my terrain script"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

// dryRun is the plan command output.
type dryRun struct {
	Intent       core.Intent       `json:"intent"`
	Context      map[string]string `json:"context"`
	Completeness float64           `json:"completeness"`
	Missing      []core.Field      `json:"missing_fields"`
	Plan         planner.Plan      `json:"plan"`
}

func runPlan(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	sess := core.NewSessionContext(core.NewID())

	u, err := nlu.NewRuleUnderstander().Understand(cmd.Context(), text, nil, sess.Context)
	if err != nil {
		return err
	}
	facts := u.Entities
	if ct := planner.Describe(u.Intent).ContentType; ct != "" {
		if facts == nil {
			facts = map[string]core.Fact{}
		}
		facts[string(core.FieldContentType)] = core.Fact{Value: ct, Confidence: 0.9}
	}
	accumulator.New().Merge(sess, facts)
	if u.Intent.IsTask() {
		sess.TaskIntent = u.Intent
	}
	sess.State = core.StateDesigning

	return writeJSON(cmd.OutOrStdout(), dryRun{
		Intent:       u.Intent,
		Context:      sess.Context.Values(),
		Completeness: sess.Completeness,
		Missing:      accumulator.Missing(&sess.Context),
		Plan:         planner.New().BuildPlan(u.Intent, sess),
	})
}
