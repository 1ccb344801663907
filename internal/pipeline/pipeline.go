// Package pipeline runs a per-repository script across a set of target
// directories: filtering by include/exclude sets, resolving the script
// name, and streaming each invocation's output to the caller.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Target is one directory the runner considers, plus any per-entry script
// name override taken from a concise plan file.
type Target struct {
	Dir            string
	ScriptOverride string
}

// Options controls a Run.
type Options struct {
	DefaultScript   string
	Include         []string
	Exclude         []string
	DryRun          bool
	ContinueOnError bool
	SkipDeps        bool
	Stdout          io.Writer
	Stderr          io.Writer
}

// RecordKind discriminates the variants of Record.
type RecordKind string

const (
	RecordSuccess  RecordKind = "success"
	RecordFailure  RecordKind = "failure"
	RecordMissing  RecordKind = "missing"
	RecordNoScript RecordKind = "no_script"
	RecordFiltered RecordKind = "filtered"
)

// Record is the outcome of considering one Target.
type Record struct {
	Dir      string
	Script   string
	Kind     RecordKind
	ExitCode int
}

// Summary aggregates a Run's Records.
type Summary struct {
	Records []Record
}

// Counts tallies Records by outcome: succeeded, failed, and everything
// else (missing directory, filtered out, no script found).
func (s *Summary) Counts() (succeeded, failed, skipped int) {
	for _, r := range s.Records {
		switch r.Kind {
		case RecordSuccess:
			succeeded++
		case RecordFailure:
			failed++
		default:
			skipped++
		}
	}
	return
}

// Write renders the summary in the documented shape:
//
//	=== Pipeline Summary ===
//	✅ <dir>/<script> — success
//	❌ <dir>/<script> — failed (exit code N)
//	⏭ <dir> — no <script> found
//	Total: T repositories | S succeeded | F failed | K skipped
func (s *Summary) Write(w io.Writer) {
	fmt.Fprintln(w, "=== Pipeline Summary ===")
	for _, r := range s.Records {
		switch r.Kind {
		case RecordSuccess:
			fmt.Fprintf(w, "✅ %s/%s — success\n", r.Dir, r.Script)
		case RecordFailure:
			fmt.Fprintf(w, "❌ %s/%s — failed (exit code %d)\n", r.Dir, r.Script, r.ExitCode)
		case RecordMissing:
			fmt.Fprintf(w, "⏭ %s — directory not found\n", r.Dir)
		case RecordFiltered:
			fmt.Fprintf(w, "⏭ %s — filtered out\n", r.Dir)
		case RecordNoScript:
			fmt.Fprintf(w, "⏭ %s — no %s found\n", r.Dir, scriptOrDefault(r.Script))
		}
	}
	succeeded, failed, skipped := s.Counts()
	fmt.Fprintf(w, "Total: %d repositories | %d succeeded | %d failed | %d skipped\n", len(s.Records), succeeded, failed, skipped)
}

func scriptOrDefault(script string) string {
	if script == "" {
		return "script"
	}
	return script
}

// FailureExitCode returns the first failed Record's exit code, or 0 if
// none failed. Used to set the process exit code in non-continue mode.
func (s *Summary) FailureExitCode() int {
	for _, r := range s.Records {
		if r.Kind == RecordFailure {
			return r.ExitCode
		}
	}
	return 0
}

// HasFailures reports whether any Record failed.
func (s *Summary) HasFailures() bool {
	for _, r := range s.Records {
		if r.Kind == RecordFailure {
			return true
		}
	}
	return false
}

// Run walks targets in order, applying the include/exclude/existence
// filters, then resolving and running each target's script. By default
// the first failure aborts the walk; opts.ContinueOnError processes the
// full list instead.
func Run(ctx context.Context, targets []Target, opts Options) (*Summary, error) {
	summary := &Summary{}
	for _, target := range targets {
		record, err := considerTarget(ctx, target, opts)
		if err != nil {
			return summary, err
		}
		summary.Records = append(summary.Records, record)
		if record.Kind == RecordFailure && !opts.ContinueOnError {
			break
		}
	}
	return summary, nil
}

func considerTarget(ctx context.Context, target Target, opts Options) (Record, error) {
	base := filepath.Base(target.Dir)

	if len(opts.Include) > 0 && !matchesAny(opts.Include, base) {
		return Record{Dir: target.Dir, Kind: RecordFiltered}, nil
	}
	if len(opts.Exclude) > 0 && matchesAny(opts.Exclude, base) {
		return Record{Dir: target.Dir, Kind: RecordFiltered}, nil
	}
	if info, err := os.Stat(target.Dir); err != nil || !info.IsDir() {
		return Record{Dir: target.Dir, Kind: RecordMissing}, nil
	}

	script := opts.DefaultScript
	if target.ScriptOverride != "" {
		script = target.ScriptOverride
	}
	scriptPath := filepath.Join(target.Dir, script)
	if info, err := os.Stat(scriptPath); err != nil || info.IsDir() {
		return Record{Dir: target.Dir, Script: script, Kind: RecordNoScript}, nil
	}

	if opts.DryRun {
		fmt.Fprintf(stdoutOrDiscard(opts), "would run %s\n", scriptPath)
		return Record{Dir: target.Dir, Script: script, Kind: RecordSuccess}, nil
	}

	_ = os.Chmod(scriptPath, 0o755)

	cmd := exec.CommandContext(ctx, scriptPath)
	if opts.SkipDeps {
		cmd.Env = append(os.Environ(), "REPOS_SKIP_DEPS=1")
	}
	cmd.Dir = target.Dir
	cmd.Stdout = stdoutOrDiscard(opts)
	cmd.Stderr = stderrOrDiscard(opts)

	if err := cmd.Run(); err != nil {
		exitCode := 1
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok {
			exitCode = exitErr.ExitCode()
		}
		return Record{Dir: target.Dir, Script: script, Kind: RecordFailure, ExitCode: exitCode}, nil
	}
	return Record{Dir: target.Dir, Script: script, Kind: RecordSuccess}, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	*target = exitErr
	return true
}

func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
		if pattern == name {
			return true
		}
	}
	return false
}

func stdoutOrDiscard(opts Options) io.Writer {
	if opts.Stdout != nil {
		return opts.Stdout
	}
	return io.Discard
}

func stderrOrDiscard(opts Options) io.Writer {
	if opts.Stderr != nil {
		return opts.Stderr
	}
	return io.Discard
}
