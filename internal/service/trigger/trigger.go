// Package trigger decides whether a classified event should start an agent run.
package trigger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chainguard-dev/clog"

	"github.com/olemp/code-agent/internal/config"
	"github.com/olemp/code-agent/internal/controller/webhook"
	"github.com/olemp/code-agent/pkg/agent"
)

// GenericInstruction is used when a label triggers on an event without a title.
const GenericInstruction = "Review and address the changes requested in this conversation."

// Decision is the outcome of a successful resolution.
type Decision struct {
	Agent       agent.Kind
	Instruction string
	// Source records what selected the agent: "command" or "label".
	Source string
}

// Resolve applies override blocks from the event body onto cfg, then looks
// for an agent command, then for a trigger label. It returns nil when the
// event should not start a run. raw supplies the label of label-change
// payloads and may be the zero value.
func Resolve(ctx context.Context, ev webhook.Event, raw webhook.RawEvent, cfg *config.RunConfig) *Decision {
	if ev == nil || cfg == nil {
		return nil
	}
	ApplyOverrides(ctx, ev.Body(), cfg)

	if kind, instruction, ok := matchCommand(ev.TriggerText(), cfg); ok {
		if instruction == "" {
			clog.InfoContextf(ctx, "trigger: %s command without instruction", kind)
			return nil
		}
		return &Decision{Agent: kind, Instruction: instruction, Source: "command"}
	}

	kind, ok := matchLabel(eventLabels(ev, raw), cfg)
	if !ok {
		return nil
	}
	instruction := defaultInstruction(ev.Title(), ev.Body())
	if instruction == "" {
		return nil
	}
	return &Decision{Agent: kind, Instruction: instruction, Source: "label"}
}

// CommandPrefix returns the configured command for k.
func CommandPrefix(k agent.Kind, cfg *config.RunConfig) string {
	if k == agent.Codex {
		return cfg.CodexTrigger
	}
	return cfg.ClaudeTrigger
}

// StripCommand removes the command prefix for k from text. ok is false when
// text does not start with it or the prefix runs into a longer word.
func StripCommand(text string, k agent.Kind, cfg *config.RunConfig) (string, bool) {
	prefix := CommandPrefix(k, cfg)
	trimmed := strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(trimmed, prefix) {
		return text, false
	}
	rest := strings.TrimPrefix(trimmed, prefix)
	if r, _ := utf8.DecodeRuneInString(rest); rest != "" && !unicode.IsSpace(r) {
		return text, false
	}
	return strings.TrimSpace(rest), true
}

func matchCommand(text string, cfg *config.RunConfig) (agent.Kind, string, bool) {
	for _, k := range agent.Kinds {
		if rest, ok := StripCommand(text, k, cfg); ok {
			return k, rest, true
		}
	}
	return "", "", false
}

// matchLabel prefers a reserved agent name anywhere in labels over custom
// trigger labels. Within each tier the first label in order wins.
func matchLabel(labels []string, cfg *config.RunConfig) (agent.Kind, bool) {
	for _, label := range labels {
		if k := agent.Kind(label); k.Valid() {
			return k, true
		}
	}
	for _, label := range labels {
		if slices.Contains(cfg.TriggerLabels, label) {
			return cfg.DefaultAgent, true
		}
	}
	return "", false
}

func eventLabels(ev webhook.Event, raw webhook.RawEvent) []string {
	labels := ev.LabelNames()
	if raw.Label == nil || raw.Label.Name == "" {
		return labels
	}
	for _, l := range labels {
		if l == raw.Label.Name {
			return labels
		}
	}
	return append([]string{raw.Label.Name}, labels...)
}

func defaultInstruction(title, body string) string {
	if strings.TrimSpace(title) == "" {
		return GenericInstruction
	}
	return strings.TrimSpace(fmt.Sprintf("Review and address this issue: %s\n\n%s", title, body))
}
