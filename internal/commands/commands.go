// Package commands turns CLI commands into tasks for the orchestration loop.
package commands

import (
	"fmt"
	"path"
	"strings"

	"devassist/internal/signals"
)

type Command string

const (
	Explain     Command = "explain"
	Entry       Command = "entry"
	Find        Command = "find"
	ExplainFile Command = "explain-file"
	Tree        Command = "tree"
	ExplainFlow Command = "explain-flow"
	Lint        Command = "lint"
	Optimize    Command = "optimize"
	Fix         Command = "fix"
)

// All lists the commands Build accepts.
var All = []Command{Explain, Entry, Find, ExplainFile, Tree, ExplainFlow, Lint, Optimize, Fix}

// Args carries the positional arguments and flags of a command.
type Args struct {
	Symbols       []string
	Path          string
	Depth         int
	AllowRefactor bool
}

// Task is what the loop receives. When NeedsSignals is set the caller
// collects a signal report for SignalPath and attaches it with WithSignals.
type Task struct {
	Name         Command
	Prompt       string
	SignalPath   string
	NeedsSignals bool
}

const plainRules = `Rules:
- Plain text only
- No markdown
- No emojis
- No speculation`

func header(cmd Command, goal string) string {
	return fmt.Sprintf("You are executing the CLI command: %s.\n\nGoal:\n%s\n\n", cmd, goal)
}

func Build(cmd Command, a Args) (Task, error) {
	t := Task{Name: cmd}
	var b strings.Builder
	switch cmd {
	case Explain:
		b.WriteString(header(cmd, "Give a concise, high-level explanation of the project."))
		b.WriteString(plainRules + "\n- Base the answer only on tool output\n\n")
		b.WriteString(`Use exactly this format:

PROJECT
<1-2 sentences>

STRUCTURE
- <top-level folder or file>: <short description>

ENTRY POINTS
- <file>: <reason>

TECH STACK
- Frameworks: ...
- Libraries: ...

Do not repeat sections.`)

	case Entry:
		b.WriteString(header(cmd, "List the execution entry points and why each one is an entry point."))
		b.WriteString(plainRules + "\n- Leave out unrelated files\n\n")
		b.WriteString("Format:\n- <file> -> <reason>")

	case Find:
		symbol := strings.TrimSpace(strings.Join(a.Symbols, " "))
		if symbol == "" {
			return Task{}, fmt.Errorf("find: a symbol is required")
		}
		b.WriteString(header(cmd, fmt.Sprintf("Find where '%s' is defined and used, and explain its role in the project.", symbol)))
		b.WriteString(plainRules + "\n- Group results by file\n- Show line numbers when available\n\n")
		b.WriteString("Format:\nFILE: <path>\n- line <n>: <snippet>")

	case ExplainFile:
		p, err := cleanPath(cmd, a.Path, false)
		if err != nil {
			return Task{}, err
		}
		b.WriteString(header(cmd, fmt.Sprintf("Explain the file '%s': its responsibilities and how it fits into the project.", p)))
		b.WriteString(plainRules + "\n- Base the explanation only on the file content and project context\n\n")
		b.WriteString("Format:\nFILE\n<path>\n\nPURPOSE\n<4-5 sentences>\n\nKEY RESPONSIBILITIES\n- ...\n- ...")

	case Tree:
		depth := a.Depth
		if depth <= 0 {
			depth = 4
		}
		b.WriteString(header(cmd, fmt.Sprintf("Show the project layout up to depth %d and say what each top-level part is for.", depth)))
		b.WriteString(fmt.Sprintf("Call project_tree with max_depth %d first.\n\n", depth))
		b.WriteString(plainRules + "\n- Skip dependency and build folders\n\n")
		b.WriteString("Format:\nTREE\n<indented tree>\n\nNOTES\n- <folder>: <purpose>")

	case ExplainFlow:
		p, err := cleanPath(cmd, a.Path, false)
		if err != nil {
			return Task{}, err
		}
		b.WriteString(header(cmd, fmt.Sprintf("Trace the execution flow that starts in '%s'.", p)))
		b.WriteString("Read the file, then follow the calls it makes into other project files.\n\n")
		b.WriteString(plainRules + "\n- Follow project code only, not dependencies\n\n")
		b.WriteString("Format:\nSTART\n<file>\n\nFLOW\n1. <file>:<function> - <what happens>\n2. ...\n\nSIDE EFFECTS\n- ...")

	case Lint:
		t.NeedsSignals = true
		t.SignalPath = signalPath(a.Path)
		b.WriteString(header(cmd, "Report likely defects and hygiene problems using the analysis signals below."))
		b.WriteString(plainRules + "\n- Cover unused symbols, external side effects and exception handling\n- One finding per line\n\n")
		b.WriteString("Format:\n<file>:<line> [<category>] <finding>")

	case Optimize:
		t.NeedsSignals = true
		t.SignalPath = signalPath(a.Path)
		b.WriteString(header(cmd, "Suggest performance improvements for the expensive operations in the analysis signals below."))
		b.WriteString(plainRules + "\n- Prioritize operations inside loops and async code\n- Do not rewrite code\n\n")
		b.WriteString("Format:\n<file>:<line> <method> - <suggestion>")

	case Fix:
		t.NeedsSignals = true
		t.SignalPath = signalPath(a.Path)
		b.WriteString(header(cmd, "Propose fixes for the problems shown by the analysis signals below."))
		b.WriteString(plainRules + "\n")
		if a.AllowRefactor {
			b.WriteString("- Refactoring across functions and files is allowed when it removes the problem\n\n")
		} else {
			b.WriteString("- Keep every change minimal and local; do not refactor\n\n")
		}
		b.WriteString("Format:\nFILE: <path>\n- line <n>: <problem>\n  fix: <change>")

	default:
		return Task{}, fmt.Errorf("unknown command %q", cmd)
	}
	t.Prompt = b.String()
	return t, nil
}

func cleanPath(cmd Command, p string, optional bool) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		if optional {
			return ".", nil
		}
		return "", fmt.Errorf("%s: a path is required", cmd)
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/")), nil
}

func signalPath(p string) string {
	out, _ := cleanPath("", p, true)
	return out
}

// WithSignals appends a serialized report to a task prompt.
func WithSignals(prompt string, report signals.Report) (string, error) {
	raw, err := report.JSON()
	if err != nil {
		return "", err
	}
	return prompt + "\n\nAnalysis signals (precomputed, complete and authoritative):\n" + raw, nil
}
