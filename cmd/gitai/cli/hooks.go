package cli

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/gitattrib/gitai/cmd/gitai/cli/agent"
	"github.com/gitattrib/gitai/cmd/gitai/cli/logging"
	"github.com/gitattrib/gitai/internal/attribution"
	"github.com/gitattrib/gitai/internal/gitrepo"
	"github.com/gitattrib/gitai/internal/pipeline"
	"github.com/gitattrib/gitai/internal/prompt"
	"github.com/gitattrib/gitai/internal/reconciler"
	"github.com/gitattrib/gitai/internal/workinglog"
	"github.com/spf13/cobra"
)

// newHooksCmd builds the `gitai hooks <agent> <verb>` tree named by
// section 2.1: one subcommand per registered agent, and under each, one
// leaf per hook verb the agent's HookHandler reports.
func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hooks",
		Short:  "Internal: invoked by agent lifecycle hooks",
		Hidden: true,
	}

	for _, name := range agent.List() {
		ag, err := agent.Get(name)
		if err != nil {
			continue
		}
		handler, ok := ag.(agent.HookHandler)
		if !ok {
			continue
		}
		cmd.AddCommand(newAgentHooksCmd(name, ag, handler))
	}

	return cmd
}

func newAgentHooksCmd(name agent.AgentName, ag agent.Agent, handler agent.HookHandler) *cobra.Command {
	agentCmd := &cobra.Command{
		Use:    string(name),
		Hidden: true,
	}

	for _, verb := range handler.GetHookNames() {
		verb := verb
		agentCmd.AddCommand(&cobra.Command{
			Use:           verb,
			Hidden:        true,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, _ []string) error {
				runHook(cmd.Context(), name, ag, hookTypeForVerb(verb))
				return nil
			},
		})
	}

	return agentCmd
}

// hookTypeForVerb maps an agent's native hook verb (the vocabulary its
// own settings file speaks) onto the HookType vocabulary ParseHookInput
// expects. The two never lined up 1:1 across agents, so this is where
// that gets reconciled.
func hookTypeForVerb(verb string) agent.HookType {
	switch verb {
	case "session-start", "before-agent":
		return agent.HookSessionStart
	case "session-end", "after-agent":
		return agent.HookSessionEnd
	case "user-prompt-submit", "before-model":
		return agent.HookUserPromptSubmit
	case "stop", "after-model":
		return agent.HookStop
	case "pre-task", "before-tool", "before-tool-selection":
		return agent.HookPreToolUse
	case "post-task", "post-todo", "after-tool":
		return agent.HookPostToolUse
	default:
		return agent.HookType(strings.ReplaceAll(verb, "-", "_"))
	}
}

// runHook is the body every hook leaf runs. It never returns a
// non-zero exit or propagates an error to the agent: a gitai hook
// must never block or fail the agent's own hook chain.
func runHook(ctx context.Context, name agent.AgentName, ag agent.Agent, hookType agent.HookType) {
	input, err := ag.ParseHookInput(hookType, os.Stdin)
	if err != nil {
		logging.Debug(ctx, "hooks: failed to parse hook input",
			"agent", string(name), "hook_type", string(hookType), "error", err.Error())
		return
	}

	ctx = logging.WithAgent(ctx, string(name))
	ctx = logging.WithSession(ctx, input.SessionID)

	op := "hooks." + string(name) + "." + string(hookType)
	if err := reconciler.Guard(op, func() error {
		return handleHookInput(ctx, name, hookType, input)
	}); err != nil {
		logging.Debug(ctx, "hooks: handler error", "op", op, "error", err.Error())
	}
}

func handleHookInput(ctx context.Context, name agent.AgentName, hookType agent.HookType, input *agent.HookInput) error {
	switch hookType {
	case agent.HookPreToolUse, agent.HookPostToolUse:
		return recordToolUseCheckpoint(ctx, name, hookType, input)
	default:
		logging.Debug(ctx, "hooks: lifecycle event", "hook_type", string(hookType), "tool", input.ToolName)
		return nil
	}
}

// recordToolUseCheckpoint folds one tool-use hook into the working log:
// it diffs the file the tool touched against its prior committed
// content and appends the resulting attribution delta as a Checkpoint.
// Hooks that don't carry a recognizable file edit (most tool calls) are
// a silent no-op, not an error.
func recordToolUseCheckpoint(ctx context.Context, name agent.AgentName, hookType agent.HookType, input *agent.HookInput) error {
	edit, ok := extractToolEdit(input.ToolName, input.ToolInput, input.ToolResponse)
	if !ok {
		return nil
	}

	repo, err := gitrepo.Open(".")
	if err != nil {
		return nil
	}
	gitDir, err := repo.GitDir()
	if err != nil {
		return nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil
	}

	oldContent, _, err := repo.FileContentAt(head, edit.file)
	if err != nil {
		return nil
	}

	agentID := prompt.AgentId{Tool: string(name), ID: input.SessionID}
	authorID := prompt.HashOf(agentID)
	ts := time.Now().Unix()

	baseline := attribution.HumanBaseline(oldContent, ts)
	newVector := attribution.UpdateAttributions(oldContent, edit.content, baseline, authorID, ts)
	lineAttrs := attribution.ToLineAttributions(newVector, edit.content)

	stateDir := pipeline.StateDir(gitDir)
	store := workinglog.Open(pipeline.WorkingLogDir(stateDir, head))

	preSHA, err := store.PersistFileVersion([]byte(oldContent))
	if err != nil {
		return err
	}
	postSHA, err := store.PersistFileVersion([]byte(edit.content))
	if err != nil {
		return err
	}

	cp := workinglog.Checkpoint{
		APIVersion: workinglog.APIVersion,
		Kind:       workinglog.KindAiAgent,
		Timestamp:  ts,
		Author:     authorID,
		AgentID:    &agentID,
		Entries: []workinglog.CheckpointEntry{
			{
				File:             edit.file,
				Attributions:     newVector,
				LineAttributions: lineAttrs,
				PreBlobSHA:       preSHA,
				PostBlobSHA:      postSHA,
				LineCountDelta:   strings.Count(edit.content, "\n") - strings.Count(oldContent, "\n"),
			},
		},
	}

	return store.AppendCheckpoint(cp, true)
}

// toolEdit is the file/new-content pair recovered from a tool-use
// hook's raw JSON payload, generalized across agents' tool shapes.
type toolEdit struct {
	file    string
	content string
}

// extractToolEdit recognizes the handful of tool shapes that write
// whole-file content, across the agents this package supports. For
// edit-in-place tools (Edit/MultiEdit/replace) the tool input carries
// only the diff fragments, not the resulting file, so the current
// on-disk content is read instead — PostToolUse fires after the write.
func extractToolEdit(toolName string, toolInput, toolResponse []byte) (toolEdit, bool) {
	switch toolName {
	case "Write", "write_file":
		var in struct {
			FilePath string `json:"file_path"`
			Content  string `json:"content"`
		}
		if json.Unmarshal(toolInput, &in) != nil || in.FilePath == "" {
			return toolEdit{}, false
		}
		return toolEdit{file: in.FilePath, content: in.Content}, true

	case "Edit", "MultiEdit", "replace":
		var in struct {
			FilePath string `json:"file_path"`
		}
		if json.Unmarshal(toolInput, &in) != nil || in.FilePath == "" {
			return toolEdit{}, false
		}
		data, err := os.ReadFile(in.FilePath)
		if err != nil {
			return toolEdit{}, false
		}
		return toolEdit{file: in.FilePath, content: string(data)}, true

	default:
		_ = toolResponse
		return toolEdit{}, false
	}
}
