package telemetry

import (
	"fmt"
	"strings"
	"sync"
)

type Level string

const (
	LevelBroken  Level = "broken"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
	LevelCount   Level = "count"
)

type Report struct {
	Level  Level
	ID     string
	Params []any
}

// Recorder is an API that keeps every report in memory, it is meant for tests
// that need to assert that a component reported (or did not report) something.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

func (r *Recorder) add(level Level, id string, params []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Level: level, ID: id, Params: params})
}

func (r *Recorder) ReportBroken(id string, params ...any)  { r.add(LevelBroken, id, params) }
func (r *Recorder) ReportWarning(id string, params ...any) { r.add(LevelWarning, id, params) }
func (r *Recorder) ReportInfo(msg string, params ...any)   { r.add(LevelInfo, msg, params) }
func (r *Recorder) ReportDebug(msg string, params ...any)  { r.add(LevelDebug, msg, params) }
func (r *Recorder) ReportCount(id string, count int64)     { r.add(LevelCount, id, []any{count}) }

func (r *Recorder) Reports() []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Report, len(r.reports))
	copy(out, r.reports)
	return out
}

// Has returns true if a report of the given level has an id containing `fragment`.
func (r *Recorder) Has(level Level, fragment string) bool {
	for _, rep := range r.Reports() {
		if rep.Level == level && strings.Contains(rep.ID, fragment) {
			return true
		}
	}
	return false
}

func (r *Recorder) String() string {
	var out strings.Builder
	for _, rep := range r.Reports() {
		out.WriteString(fmt.Sprintf("[%s] %s %v\n", rep.Level, rep.ID, rep.Params))
	}
	return out.String()
}
