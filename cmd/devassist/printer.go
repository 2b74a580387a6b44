package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"

	"devassist/internal/apperr"
	"devassist/internal/llmtool"
)

var (
	infoColor  = color.New(color.FgCyan)
	toolColor  = color.New(color.FgYellow)
	warnColor  = color.New(color.FgMagenta)
	errorColor = color.New(color.FgRed, color.Bold)
)

// progress prints one colored line per loop event.
func progress(w io.Writer) llmtool.Observer {
	return llmtool.ObserverFunc(func(_ context.Context, ev llmtool.Event) {
		switch ev.Kind {
		case llmtool.EventStep:
			infoColor.Fprintf(w, "[INFO] step %d\n", ev.Step)
		case llmtool.EventToolCall:
			toolColor.Fprintf(w, "[TOOL] %s %s\n", ev.Tool, ev.Arguments)
		case llmtool.EventToolResult:
			if ev.Error != "" {
				warnColor.Fprintf(w, "[WARN] %s: %s\n", ev.Tool, ev.Error)
			}
		case llmtool.EventExhausted:
			warnColor.Fprintf(w, "[WARN] step budget exhausted after %d steps\n", ev.Step)
		case llmtool.EventFailed:
			errorColor.Fprintf(w, "[ERROR] %s\n", ev.Error)
		}
	})
}

func printError(w io.Writer, err error) {
	if code := apperr.CodeOf(err); code != "" {
		errorColor.Fprintf(w, "[%s] ", code)
	} else {
		errorColor.Fprint(w, "[ERROR] ")
	}
	fmt.Fprintln(w, err)
}
