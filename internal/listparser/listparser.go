// Package listparser reads a plan file and produces a normalized list of
// Entries plus the GlobalFlags recognized at the top of the file. It does
// no remote validation beyond classifying each remote specifier's shape;
// everything else is the Planner's job.
package listparser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/forgekeep/reposync/internal/gitx"
	"github.com/forgekeep/reposync/internal/model"
)

var globalFlagTokens = map[string]struct{}{
	"default-public":    {},
	"default-private":   {},
	"force-worktree":    {},
	"enable-codespaces": {},
}

// ParseFile opens path and parses it; a convenience wrapper around Parse.
func ParseFile(path string) (model.GlobalFlags, []model.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.GlobalFlags{}, nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a plan file from r, classifying each line as a comment,
// blank, global-flag, or entry line per the grammar in §4.3. It returns
// the accumulated GlobalFlags and, in file order, the parsed Entries.
func Parse(r io.Reader) (model.GlobalFlags, []model.Entry, error) {
	var flags model.GlobalFlags
	var entries []model.Entry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		body := strings.TrimSpace(stripComment(raw))
		if body == "" {
			continue
		}

		fields := strings.Fields(body)
		if len(fields) == 1 {
			if applyGlobalFlag(&flags, fields[0]) {
				continue
			}
		}

		entry := parseEntryLine(fields, model.RawLine{Number: lineNo, Text: raw})
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return flags, nil, fmt.Errorf("read plan file: %w", err)
	}
	return flags, entries, nil
}

// stripComment truncates raw at the first '#' that begins a comment: one
// at the start of the line, or preceded by whitespace. A '#' embedded in
// a token (there is none in any remote grammar this parser accepts) is
// left alone.
func stripComment(raw string) string {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '#' {
			continue
		}
		if i == 0 || raw[i-1] == ' ' || raw[i-1] == '\t' {
			return raw[:i]
		}
	}
	return raw
}

func applyGlobalFlag(flags *model.GlobalFlags, token string) bool {
	if _, ok := globalFlagTokens[token]; !ok {
		return false
	}
	switch token {
	case "default-public":
		flags.DefaultVisibility = model.VisibilityPublic
	case "default-private":
		flags.DefaultVisibility = model.VisibilityPrivate
	case "force-worktree":
		flags.ForceWorktree = true
	case "enable-codespaces":
		flags.EnableCodespaces = true
	}
	return true
}

func parseEntryLine(fields []string, line model.RawLine) model.Entry {
	if strings.HasPrefix(fields[0], "@") {
		return parseWorktreeEntry(fields, line)
	}
	return parseCloneEntry(fields, line)
}

func parseWorktreeEntry(fields []string, line model.RawLine) model.Entry {
	entry := model.Entry{
		Kind:   model.EntryWorktree,
		Line:   line,
		Branch: fields[0][1:],
	}
	for _, tok := range fields[1:] {
		switch tok {
		case "--no-worktree":
			entry.NoWorktreeOverride = true
		default:
			if !strings.HasPrefix(tok, "-") && entry.Target == "" {
				entry.Target = tok
			}
		}
	}
	return entry
}

func parseCloneEntry(fields []string, line model.RawLine) model.Entry {
	remoteRaw, ref := splitRefSuffix(fields[0])
	entry := model.Entry{
		Kind:   model.EntryClone,
		Line:   line,
		Remote: gitx.ClassifyRemote(remoteRaw),
		Ref:    ref,
	}
	for _, tok := range fields[1:] {
		switch tok {
		case "--public":
			entry.PerLineVisibility = model.VisibilityPublic
		case "--private":
			entry.PerLineVisibility = model.VisibilityPrivate
		case "--worktree":
			entry.WorktreePreferred = true
		case "-a":
			entry.FetchAllRefs = true
		default:
			if !strings.HasPrefix(tok, "-") && entry.Target == "" {
				entry.Target = tok
			}
		}
	}
	return entry
}

// splitRefSuffix separates a remote token from a trailing "@branch"
// ref-suffix. The "git@host:path" form already uses '@' as its own
// syntax, so the "git@" prefix is set aside before looking for the
// ref-suffix delimiter.
func splitRefSuffix(token string) (remote, ref string) {
	prefix := ""
	body := token
	if strings.HasPrefix(token, "git@") {
		prefix = "git@"
		body = token[len(prefix):]
	}
	if idx := strings.LastIndex(body, "@"); idx >= 0 {
		return prefix + body[:idx], body[idx+1:]
	}
	return token, ""
}
