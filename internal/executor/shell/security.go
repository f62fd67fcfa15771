package shell

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrBlocked is matched by every Violation.
var ErrBlocked = errors.New("command blocked by security policy")

// DefaultBlockedCommands are never run, whatever the configuration adds.
var DefaultBlockedCommands = []string{
	// Destructive system commands
	"rm", "rmdir",
	"mkfs", "fdisk", "dd",
	"shutdown", "reboot", "halt", "poweroff",
	// Privilege escalation
	"sudo", "su", "doas", "pkexec",
	// Reverse shells
	"nc", "netcat", "ncat",
}

// DefaultBlockedPatterns are regular expressions matched against the
// whole script.
var DefaultBlockedPatterns = []string{
	`rm\s+(-[rRf]+\s+)*[/~]`,
	"`[^`]+`",
	`\$\([^)]+\)`,
	`>\s*/etc/`,
	`>\s*/dev/(sd|nvme|disk)`,
	`base64\s+(-d|--decode)`,
}

// ViolationCode identifies the kind of policy failure.
type ViolationCode string

// Violation codes.
const (
	ViolationBlockedCommand ViolationCode = "blocked_command"
	ViolationBlockedPattern ViolationCode = "blocked_pattern"
	ViolationTooLong        ViolationCode = "command_too_long"
)

// Violation is a security policy failure.
type Violation struct {
	Code    ViolationCode
	Message string
	Details string
}

func (v *Violation) Error() string {
	if v.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", v.Code, v.Message, v.Details)
	}
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

// Is matches ErrBlocked.
func (v *Violation) Is(target error) bool {
	return target == ErrBlocked
}

// policy checks scripts before they reach the shell.
type policy struct {
	blocked   map[string]bool
	patterns  []*regexp.Regexp
	maxLength int
}

// separators splits a script into the commands the shell would run.
var separators = regexp.MustCompile(`[;&|\n()]+`)

func newPolicy(blocked, patterns []string, maxLength int) (*policy, error) {
	p := &policy{
		blocked:   make(map[string]bool, len(blocked)),
		maxLength: maxLength,
	}
	for _, cmd := range blocked {
		p.blocked[strings.ToLower(cmd)] = true
	}
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("blocked pattern %q: %w", pattern, err)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// check returns the first violation found in script, or nil.
func (p *policy) check(script string) error {
	if p.maxLength > 0 && len(script) > p.maxLength {
		return &Violation{
			Code:    ViolationTooLong,
			Message: "command exceeds maximum length",
			Details: fmt.Sprintf("length=%d, max=%d", len(script), p.maxLength),
		}
	}

	for _, name := range commandNames(script) {
		if p.blocked[strings.ToLower(name)] {
			return &Violation{
				Code:    ViolationBlockedCommand,
				Message: fmt.Sprintf("command %q is blocked", name),
			}
		}
	}

	for _, re := range p.patterns {
		if re.MatchString(script) {
			return &Violation{
				Code:    ViolationBlockedPattern,
				Message: "command matches blocked pattern",
				Details: re.String(),
			}
		}
	}
	return nil
}

// commandNames returns the base name of the first word of every command
// in script, skipping leading variable assignments.
func commandNames(script string) []string {
	var names []string
	for _, segment := range separators.Split(script, -1) {
		for _, word := range strings.Fields(segment) {
			if strings.Contains(word, "=") && !strings.HasPrefix(word, "=") {
				continue
			}
			names = append(names, filepath.Base(word))
			break
		}
	}
	return names
}
