// Package report renders human-readable VM/heap/module-cache statistics,
// generalizing the teacher's internal/reporting (which renders a
// SecurityReport of findings to a terminal/file) to a toolchain run
// summary: heap occupancy by kind, module-cache hit/miss counts, and
// wall-clock-free timer/microtask backlog, at process exit or on demand.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"nyx/internal/vmvalue"
)

// RunID mints a process-run identifier the way the teacher's reporting
// module stamps a report ID, used to correlate a run's diagnostics,
// module-cache entries, and timer/promise handles in logs.
func RunID() string { return uuid.NewString() }

// Stats is a snapshot of one VM run's resource usage, gathered by the
// caller (cmd/nyx) after Run returns.
type Stats struct {
	RunID          string
	HeapLive       map[vmvalue.Kind]int
	ModuleHits     int
	ModuleMisses   int
	MicrotasksRun  int
	TimersFired    int
	InstructionsRun uint64
}

// Renderer writes Stats to an io.Writer, colorizing section headers when
// the writer is a terminal (detected with go-isatty, the same TTY sniff
// the teacher's CLI formatter uses before deciding whether to colorize
// lint output).
type Renderer struct {
	w      io.Writer
	color  bool
}

// NewRenderer builds a Renderer for w. If w is backed by a file
// descriptor (typically os.Stdout), isatty.IsTerminal decides whether
// ANSI color codes are safe to emit.
func NewRenderer(w io.Writer) *Renderer {
	color := false
	if f, ok := w.(interface{ Fd() uintptr }); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Renderer{w: w, color: color}
}

func (r *Renderer) section(title string) {
	if r.color {
		fmt.Fprintf(r.w, "\x1b[1m%s\x1b[0m\n", title)
	} else {
		fmt.Fprintln(r.w, title)
	}
}

// Render writes a multi-section human-readable summary of s.
func (r *Renderer) Render(s Stats) {
	r.section(fmt.Sprintf("nyx run %s", s.RunID))
	fmt.Fprintf(r.w, "  instructions executed: %s\n", humanize.Comma(int64(s.InstructionsRun)))

	r.section("heap")
	kinds := make([]vmvalue.Kind, 0, len(s.HeapLive))
	for k := range s.HeapLive {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	var totalBytesEstimate uint64
	for _, k := range kinds {
		n := s.HeapLive[k]
		fmt.Fprintf(r.w, "  %-10s %s live\n", k.String(), humanize.Comma(int64(n)))
		totalBytesEstimate += uint64(n) * 64
	}
	fmt.Fprintf(r.w, "  ~%s resident (estimate)\n", humanize.Bytes(totalBytesEstimate))

	r.section("module cache")
	total := s.ModuleHits + s.ModuleMisses
	hitRate := 0.0
	if total > 0 {
		hitRate = 100 * float64(s.ModuleHits) / float64(total)
	}
	fmt.Fprintf(r.w, "  %d hits, %d misses (%.1f%% hit rate)\n", s.ModuleHits, s.ModuleMisses, hitRate)

	r.section("event loop")
	fmt.Fprintf(r.w, "  %s microtasks run, %s timers fired\n",
		humanize.Comma(int64(s.MicrotasksRun)), humanize.Comma(int64(s.TimersFired)))
}
