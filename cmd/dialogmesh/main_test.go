package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh"
	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/planner"
	"github.com/hupe1980/dialogmesh/synth"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "dialogmesh dev\n", out.String())
}

func TestPlanCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"plan", "create a quiz about cells for 7th grade science"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	var got dryRun
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, core.IntentCreateQuiz, got.Intent)
	assert.Equal(t, planner.AgentQuiz, got.Plan.PrimaryAgent)
	assert.Equal(t, "cells", got.Context["topic"])
	assert.Empty(t, got.Missing)
}

func TestChat(t *testing.T) {
	m := dialogmesh.New(func(o *dialogmesh.Options) { o.Phraser = synth.NewSeededPhraser(1) })
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	in := strings.NewReader("create a lesson\n\n/summary\n/plan\n/quit\n")
	var out bytes.Buffer

	require.NoError(t, chat(cmd, m, in, &out))

	text := out.String()
	assert.Contains(t, text, "GATHERING_REQUIREMENTS")
	assert.Contains(t, text, `"total_turns": 1`)
	assert.Contains(t, text, `"primary_agent": "curriculum"`)
}
