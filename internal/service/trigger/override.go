package trigger

import (
	"context"
	"regexp"
	"strings"

	"github.com/chainguard-dev/clog"
	"gopkg.in/yaml.v3"

	"github.com/olemp/code-agent/internal/config"
)

// OverrideMarker tags a fenced block as agent configuration.
const OverrideMarker = "code-agent"

var fencedBlock = regexp.MustCompile("(?s)```([^\\n`]*)\\n(.*?)\\n?```")

// overrideBlocks returns the contents of fenced blocks whose info string
// names the marker, optionally with a yaml, yml or json language tag.
func overrideBlocks(text string) []string {
	var out []string
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if isOverrideInfo(m[1]) {
			out = append(out, m[2])
		}
	}
	return out
}

func isOverrideInfo(info string) bool {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return false
	}
	if fields[0] == OverrideMarker {
		return len(fields) == 1
	}
	switch strings.ToLower(fields[0]) {
	case "yaml", "yml", "json":
	default:
		return false
	}
	for _, f := range fields[1:] {
		if f == OverrideMarker {
			return true
		}
	}
	return false
}

// ApplyOverrides parses override blocks found in text and applies known keys
// onto cfg. A block that fails to parse or validate is logged and skipped.
// It returns the number of blocks applied.
func ApplyOverrides(ctx context.Context, text string, cfg *config.RunConfig) int {
	applied := 0
	for _, block := range overrideBlocks(text) {
		candidate := cfg.Clone()
		if err := yaml.Unmarshal([]byte(block), candidate); err != nil {
			clog.WarnContextf(ctx, "ignoring malformed override block: %v", err)
			continue
		}
		if err := candidate.Validate(); err != nil {
			clog.WarnContextf(ctx, "ignoring invalid override block: %v", err)
			continue
		}
		*cfg = *candidate
		applied++
	}
	return applied
}
