// Package statusparse translates porcelain-v1-style VCS status output
// into structured (kind, path) entries.
package statusparse

import "strings"

// Kind classifies the change reported for a single status line.
type Kind int

const (
	Untracked Kind = iota
	Added
	Modified
	Deleted
	Renamed
	Copied
	TypeChange
	Updated
	// Unknown is the sentinel for any code not in the fixed table. The
	// reconciler treats it as a fatal classification error; the parser
	// itself never fails on it.
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Untracked:
		return "untracked"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	case Copied:
		return "copied"
	case TypeChange:
		return "typechange"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

var codeTable = map[string]Kind{
	"??": Untracked,
	"A":  Added,
	"M":  Modified,
	"D":  Deleted,
	"R":  Renamed,
	"C":  Copied,
	"T":  TypeChange,
	"U":  Updated,
}

// Entry is one classified status line.
type Entry struct {
	Kind Kind
	// Path is the affected path, for renames this is the pre-rename
	// name: only the first path token is captured.
	Path string
	// IsDir reports whether Path refers to a directory, inferred from a
	// trailing path separator in the raw status line.
	IsDir bool
}

// Parse splits porcelain status output into one Entry per non-empty
// line. Each line is split on whitespace; the first token maps to a Kind
// via the fixed code table, the second is the path. Renamed lines carry
// extra tokens past the path (e.g. " -> newname"); only the first path
// token is kept.
func Parse(output string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			entries = append(entries, Entry{Kind: Unknown, Path: line})
			continue
		}

		code := fields[0]
		kind, ok := codeTable[code]
		if !ok {
			kind = Unknown
		}

		path := fields[1]
		isDir := strings.HasSuffix(path, "/")
		path = strings.TrimSuffix(path, "/")

		entries = append(entries, Entry{Kind: kind, Path: path, IsDir: isDir})
	}
	return entries
}
