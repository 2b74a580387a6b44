package signals

import (
	"encoding/json"
	"sort"
)

// Definition locates a symbol. The name is the map key in Report.
type Definition struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

type UnusedSymbol struct {
	Symbol    string     `json:"symbol"`
	DefinedIn Definition `json:"defined_in"`
}

type ExternalCallSite struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}

type ExceptionBlock struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

type OpSignals struct {
	InsideLoop   bool `json:"inside_loop"`
	AsyncContext bool `json:"async_context"`
}

type ExpensiveOperation struct {
	File    string    `json:"file"`
	Line    int       `json:"line"`
	Method  string    `json:"method"`
	Signals OpSignals `json:"signals"`
}

// Report is a point-in-time snapshot of one subtree. Treat it as read-only;
// a new collection produces a new Report.
type Report struct {
	Definitions   map[string]Definition `json:"definitions"`
	Usages        map[string][]string   `json:"usages"`
	Unused        []UnusedSymbol        `json:"unused"`
	ExternalCalls []ExternalCallSite    `json:"external_calls"`
	TryBlocks     []ExceptionBlock      `json:"try_blocks"`
	ExpensiveOps  []ExpensiveOperation  `json:"expensive_ops"`
}

// JSON renders the report with two-space indentation.
func (r Report) JSON() (string, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sortedNames(defs map[string]Definition) []string {
	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
