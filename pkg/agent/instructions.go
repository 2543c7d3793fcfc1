package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MimeLyc/agent-core-go/pkg/instructions"
)

// InstructionFiles are the repository guidance files read for the system prompt.
var InstructionFiles = []string{"AGENT.md", "AGENTS.md", "CLAUDE.md"}

// LoadRepoInstructions collects repository guidance from root to workDir,
// falling back to README.md. It returns "" when nothing is found.
func LoadRepoInstructions(workDir string) string {
	result := instructions.Load(workDir, instructions.LoadOptions{
		CandidateFiles: InstructionFiles,
		MaxBytes:       instructions.DefaultMaxBytes,
	})
	if strings.TrimSpace(result.Content) != "" {
		return result.Content
	}

	data, err := os.ReadFile(filepath.Join(workDir, "README.md"))
	if err != nil {
		return ""
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return ""
	}
	return fmt.Sprintf("## README.md\n%s", content)
}
