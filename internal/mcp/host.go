package mcp

import (
	"log"

	ignore "github.com/sabhiram/go-gitignore"

	"devassist/internal/safeio"
	"devassist/internal/search"
	"devassist/internal/signals"
)

// Limits bounds the filesystem tools.
type Limits struct {
	MaxFileSize     int64
	MaxFilesScanned int
	MaxLinesRead    int
}

// DefaultLimits mirrors the configuration defaults.
var DefaultLimits = Limits{MaxFileSize: 300_000, MaxFilesScanned: 300, MaxLinesRead: 100}

// Host wires workspace access for tools.
type Host struct {
	FS       *safeio.SafeFS
	Searcher *search.Searcher
	Signals  *signals.Collector
	Ignore   *ignore.GitIgnore
	Limits   Limits
	Logger   *log.Logger
}

func (h Host) logf(format string, args ...any) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}

func (h Host) limits() Limits {
	l := h.Limits
	if l.MaxFileSize <= 0 {
		l.MaxFileSize = DefaultLimits.MaxFileSize
	}
	if l.MaxFilesScanned <= 0 {
		l.MaxFilesScanned = DefaultLimits.MaxFilesScanned
	}
	if l.MaxLinesRead <= 0 {
		l.MaxLinesRead = DefaultLimits.MaxLinesRead
	}
	return l
}

// RegisterDefaultTools installs the workspace tool set into a registry.
// The orchestration tool is registered separately by its owner.
func RegisterDefaultTools(r *Registry, h Host) error {
	tools := []Tool{
		newReadFileTool(h),
		newListDirectoryTool(h),
		newSearchCodeTool(h),
		newProjectTreeTool(h),
		newEntryPointsTool(h),
		newSummarizeTool(h),
		newCollectSignalsTool(h),
		newUnusedSymbolsTool(h),
		newExpensiveOpsTool(h),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
