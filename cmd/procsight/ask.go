package main

import (
	"fmt"
	"strings"

	"procsight/internal/bootstrap"
	"procsight/internal/pkg/logger"
	"procsight/pkg/chat"
	"procsight/pkg/kv/memory"
	"procsight/pkg/prompt"
	"procsight/pkg/session"

	"github.com/spf13/cobra"
)

var (
	previewOnly bool
	backendName string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the model one question about the current processes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&previewOnly, "preview", false, "Print the assembled prompt instead of sending it")
	askCmd.Flags().StringVar(&backendName, "backend", "", "Override AI_BACKEND (local or remote)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	question := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if backendName != "" {
		cfg.Ai.Backend = backendName
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	nop := logger.NewNopLogger()
	store, err := captureLog(ctx, nop)
	if err != nil {
		return err
	}

	instructions := cfg.Ai.SystemPrompt
	if instructions == "" {
		instructions = prompt.DefaultInstructions
	}
	policy := prompt.ParsePolicy(cfg.Telemetry.PromptFilter, cfg.Telemetry.TopN, cfg.Telemetry.CPUThreshold)
	assembler := prompt.NewAssembler(instructions, store, policy)

	if previewOnly {
		p := assembler.Assemble(ctx, question)
		printRule(out, "prompt")
		fmt.Fprintln(out, p.Text)
		dimColor.Fprintf(out, "~%d tokens\n", p.EstimatedTokens)
		return nil
	}

	backend, manager, err := chat.NewBackend(bootstrap.BackendOptions(cfg, instructions), memory.NewStore(), nop, nop)
	if err != nil {
		return err
	}
	if manager != nil {
		manager.OnStatusChange(func(st session.State) {
			dimColor.Fprintf(out, "[%s]\n", st.Label)
		})
	}

	controller := chat.NewController(backend, assembler, cfg.Ai.RetryInputLength, nop, nop)
	defer controller.Dispose(ctx)

	reply, err := controller.Submit(ctx, question)
	if err != nil {
		return err
	}
	replyColor.Fprintln(out, reply.Content)
	if notice := controller.Notice(); notice != "" {
		noticeColor.Fprintln(out, notice)
	}
	return nil
}
