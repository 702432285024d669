// Package prompt builds the model prompt from instructions, the latest
// telemetry and the user's question.
package prompt

import (
	"context"
	"strings"
	"unicode/utf8"

	"procsight/pkg/telemetry"
)

// Placeholder stands in for telemetry when no rows are available.
const Placeholder = "No process data available"

const DefaultInstructions = `You are a helpful assistant analyzing host process performance.
Your role is to analyze process data and provide insights.
Always answer in 5 words or less.
Be direct and specific in your responses.`

// TelemetrySource yields the latest rolling log.
type TelemetrySource interface {
	Read(ctx context.Context) telemetry.RollingLog
}

type Prompt struct {
	Text            string `json:"text"`
	EstimatedTokens int    `json:"estimated_tokens"`
}

// EstimateTokens approximates token cost as ceil(chars/4). Advisory only.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// Assemble renders a prompt from an already-read rolling log.
func Assemble(instructions string, log telemetry.RollingLog, question string, policy FilterPolicy) Prompt {
	var b strings.Builder

	writeInstructions(&b, instructions)
	writeTelemetry(&b, log, policy)
	writeQuestion(&b, question)

	text := b.String()
	return Prompt{Text: text, EstimatedTokens: EstimateTokens(text)}
}

func writeInstructions(b *strings.Builder, instructions string) {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return
	}
	b.WriteString(instructions)
	b.WriteString("\n\n")
}

func writeTelemetry(b *strings.Builder, log telemetry.RollingLog, policy FilterPolicy) {
	b.WriteString("Current Process Data:\n")

	rows := policy.Apply(log.Rows)
	if len(rows) == 0 {
		b.WriteString(Placeholder)
		b.WriteString("\n\n")
		return
	}

	filtered := log
	filtered.Rows = rows
	b.WriteString(filtered.String())
	b.WriteString("\n\n")
}

func writeQuestion(b *strings.Builder, question string) {
	b.WriteString("User Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnalyze the above process data and answer the question.")
}

// Assembler binds instructions, a telemetry source and a filter policy.
type Assembler struct {
	instructions string
	source       TelemetrySource
	policy       FilterPolicy
}

func NewAssembler(instructions string, source TelemetrySource, policy FilterPolicy) *Assembler {
	return &Assembler{
		instructions: instructions,
		source:       source,
		policy:       policy,
	}
}

func (a *Assembler) Assemble(ctx context.Context, question string) Prompt {
	var log telemetry.RollingLog
	if a.source != nil {
		log = a.source.Read(ctx)
	}
	return Assemble(a.instructions, log, question, a.policy)
}

func (a *Assembler) Instructions() string {
	return a.instructions
}
