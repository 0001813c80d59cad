package service

import (
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/seolyn/vigil/internal/logger"
)

// MatchKind selects how a probe signature is compared against the
// process table.
type MatchKind string

const (
	// MatchExe compares the signature against the bare executable name.
	MatchExe MatchKind = "exe"
	// MatchCmdline treats the signature as a substring of the full
	// command line, including interpreter and script path.
	MatchCmdline MatchKind = "cmdline"
)

// Spec describes one supervised service. The registry of specs is fixed at
// startup; specs are never mutated while the loop runs.
type Spec struct {
	Name      string        `json:"name"`
	Signature string        `json:"signature"` // pattern recognized in the process table
	Match     MatchKind     `json:"match"`     // exe or cmdline
	Command   string        `json:"command"`   // launch command line (shell)
	WorkDir   string        `json:"work_dir"`  // optional working dir
	Env       []string      `json:"env"`       // optional extra env
	Grace     time.Duration `json:"grace"`     // startup confirmation window
	Log       logger.Config `json:"log"`       // stdout/stderr destinations for the launched process
}

// Validate reports the first problem with the spec, or nil.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("service requires name")
	}
	if strings.TrimSpace(s.Signature) == "" {
		return fmt.Errorf("service %s requires signature", s.Name)
	}
	switch s.Match {
	case MatchExe, MatchCmdline:
	case "":
		return fmt.Errorf("service %s requires match (exe or cmdline)", s.Name)
	default:
		return fmt.Errorf("service %s: unknown match kind %q", s.Name, s.Match)
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("service %s requires command", s.Name)
	}
	if s.Grace < 0 {
		return fmt.Errorf("service %s: grace must not be negative", s.Name)
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the spec's launch command.
// It avoids invoking a shell when not necessary, and it also respects
// an explicit shell invocation already present in the command string
// (e.g., "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	// If the command already explicitly uses a shell, honor it without adding another layer.
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// Always use absolute shell path to avoid PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	// Fallback: when metacharacters are present, use /bin/sh -c
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// ok: intentional execution, input is validated and safe
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// If after is wrapped in single or double quotes, strip one pair so that
			// we pass the actual script to the shell (the outer quotes would otherwise
			// inhibit parsing/redirection inside the script).
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
