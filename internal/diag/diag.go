// Package diag carries pipeline diagnostics: skipped task files, defaulted
// fields and other best-effort decisions that must not abort a run.
//
// Components never log through a global. They receive a Reporter, which is
// backed by zap in the CLI and by a Recorder in tests.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Reporter is an append-only diagnostics sink. Key/value pairs follow the
// zap sugared convention: "file", name, "task_id", 12, ...
type Reporter interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Log levels accepted by NewLogger.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// NewLogger builds the zap logger used by the CLI. format is "console" or "json".
func NewLogger(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", level, err)
	}
	if w == nil {
		w = os.Stderr
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch format {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zap.NewAtomicLevelAt(lvl))
	return zap.New(core), nil
}

type zapReporter struct {
	s *zap.SugaredLogger
}

// NewZap adapts a zap logger to the Reporter interface.
func NewZap(l *zap.Logger) Reporter {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapReporter{s: l.Sugar()}
}

func (z *zapReporter) Debug(msg string, kv ...any) { z.s.Debugw(msg, kv...) }
func (z *zapReporter) Info(msg string, kv ...any)  { z.s.Infow(msg, kv...) }
func (z *zapReporter) Warn(msg string, kv ...any)  { z.s.Warnw(msg, kv...) }
func (z *zapReporter) Error(msg string, kv ...any) { z.s.Errorw(msg, kv...) }

// Nop discards everything.
func Nop() Reporter { return NewZap(zap.NewNop()) }

// OrNop returns r, or a discarding reporter when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop()
	}
	return r
}

// Entry is one recorded diagnostic.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// Recorder keeps every diagnostic in memory. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Debug(msg string, kv ...any) { r.add(LevelDebug, msg, kv) }
func (r *Recorder) Info(msg string, kv ...any)  { r.add(LevelInfo, msg, kv) }
func (r *Recorder) Warn(msg string, kv ...any)  { r.add(LevelWarn, msg, kv) }
func (r *Recorder) Error(msg string, kv ...any) { r.add(LevelError, msg, kv) }

func (r *Recorder) add(level, msg string, kv []any) {
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg, Fields: fields})
	r.mu.Unlock()
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns the number of entries recorded at level.
func (r *Recorder) Count(level string) int {
	n := 0
	for _, e := range r.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Has reports whether any entry at level contains substr in its message.
func (r *Recorder) Has(level, substr string) bool {
	for _, e := range r.Entries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}
