package hook

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matches reports whether a matcher pattern applies to a tool
// invocation.
//
//	"*"                 every tool
//	"Edit|Write"        tool name alternation
//	"files_*"           glob on tool names
//	"Bash(*)"           tool Bash, any command
//	"Bash(git push:*)"  tool Bash, command starting with "git push"
//	"Bash(ls)"          tool Bash, command exactly "ls"
//
// Command prefixes test the parsed command, so "git push" is found
// inside compound lines like "cd /tmp && git push origin".
func Matches(pattern, tool string, args map[string]any) bool {
	if pattern == "*" {
		return true
	}

	toolPattern := pattern
	argPattern := ""
	hasArgPattern := false
	if i := strings.Index(pattern, "("); i >= 0 {
		toolPattern = pattern[:i]
		argPattern = strings.TrimSuffix(pattern[i+1:], ")")
		hasArgPattern = true
	}

	if !matchToolName(toolPattern, tool) {
		return false
	}
	if !hasArgPattern {
		return true
	}

	command := stringArg(args, "command")
	if command == "" {
		// Nothing to test the argument pattern against.
		return true
	}

	return matchCommand(argPattern, command)
}

func matchToolName(pattern, tool string) bool {
	for _, alt := range strings.Split(pattern, "|") {
		if alt == tool {
			return true
		}
		if ok, err := doublestar.Match(alt, tool); err == nil && ok {
			return true
		}
	}
	return false
}

func matchCommand(pattern, command string) bool {
	if pattern == "*" {
		return true
	}

	if prefix, ok := strings.CutSuffix(pattern, ":*"); ok {
		return commandHasPrefix(command, prefix)
	}

	return pattern == command
}

// commandHasPrefix reports whether any simple command in the line
// starts with the given words. Lines that fail to parse fall back to a
// raw string prefix so a malformed command cannot slip past a hook.
func commandHasPrefix(command, prefix string) bool {
	want := strings.Fields(prefix)
	if len(want) == 0 {
		return true
	}

	cmds, err := ParseCommand(command)
	if err != nil || len(cmds) == 0 {
		return strings.HasPrefix(command, prefix)
	}

	for _, c := range cmds {
		words := append([]string{c.Name}, c.Args...)
		if len(words) < len(want) {
			continue
		}
		matched := true
		for i, w := range want {
			if words[i] != w {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}

	return false
}
