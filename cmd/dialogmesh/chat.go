package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/dialogmesh"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/synth"
)

var (
	chatSeed    uint64
	chatJSON    bool
	chatSession string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation on standard input.

Commands inside the session:
  /summary   show the session summary
  /plan      show the plan of the last turn
  /new       start a new session
  /quit      leave`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().Uint64Var(&chatSeed, "seed", 0, "seed reply phrasing for reproducible output (0 = random)")
	chatCmd.Flags().BoolVar(&chatJSON, "json", false, "print full turn responses as JSON")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "resume a persisted session")
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := dialogmesh.NewFromConfig(cfg, func(o *dialogmesh.Options) {
		if chatSeed != 0 {
			o.Phraser = synth.NewSeededPhraser(chatSeed)
		}
	})
	if err != nil {
		return err
	}
	defer m.Close()

	return chat(cmd, m, cmd.InOrStdin(), cmd.OutOrStdout())
}

func chat(cmd *cobra.Command, m *dialogmesh.DialogMesh, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	sessionID := chatSession
	fmt.Fprintln(out, "Type a message, or /quit to leave.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			sessionID = ""
			fmt.Fprintln(out, "Started a new session.")
			continue
		case "/summary":
			sum, err := m.SessionSummary(sessionID)
			if err != nil {
				fmt.Fprintf(out, "no summary: %v\n", err)
				continue
			}
			if err := writeJSON(out, sum); err != nil {
				return err
			}
			continue
		case "/plan":
			plan, ok := m.LastPlan(sessionID)
			if !ok {
				fmt.Fprintln(out, "no plan yet")
				continue
			}
			if err := writeJSON(out, plan); err != nil {
				return err
			}
			continue
		}

		resp := m.ProcessTurn(ctx, sessionID, line)
		sessionID = resp.SessionID
		if chatJSON {
			if err := writeJSON(out, resp); err != nil {
				return err
			}
			continue
		}
		printTurn(out, resp)
	}
}

func printTurn(out io.Writer, resp engine.TurnResponse) {
	fmt.Fprintln(out, resp.Message)
	fmt.Fprintf(out, "  [%s, %.0f%% complete]\n", resp.State, resp.Completeness*100)
	for _, s := range resp.Suggestions {
		fmt.Fprintf(out, "  - %s\n", s)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
