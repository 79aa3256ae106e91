// Package pathkind distinguishes file paths from directory paths at the
// type level, so that downstream code can tell a renamed file from a
// renamed directory without re-probing the filesystem.
package pathkind

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Kind identifies what a Path points at.
type Kind int

const (
	// KindUnknown is only ever held transiently, before a Path has been
	// probed or constructed with an explicit kind.
	KindUnknown Kind = iota
	KindFile
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "unknown"
	}
}

// Errors returned by Join. Callers that need to distinguish them should
// use errors.Is.
var (
	ErrNotAPath        = errors.New("pathkind: left operand is not a path")
	ErrFileJoinFile    = errors.New("pathkind: cannot join a file path to a file path")
	ErrUnsupportedJoin = errors.New("pathkind: unsupported join operands")
)

// Path is an absolute filesystem path tagged with its Kind.
type Path struct {
	abs  string
	kind Kind
}

// New constructs a Path from an absolute or relative string. If probe is
// true, the filesystem is consulted to determine the Kind; a path that
// exists as neither a file nor a directory defaults to KindDir, per the
// reconciler's directory-creation semantics.
func New(p string, probe bool) (Path, error) {
	if p == "" {
		return Path{}, fmt.Errorf("pathkind: empty path")
	}
	kind := KindUnknown
	if probe {
		info, err := os.Stat(p)
		switch {
		case err == nil && info.IsDir():
			kind = KindDir
		case err == nil:
			kind = KindFile
		default:
			kind = KindDir
		}
	}
	return Path{abs: p, kind: kind}, nil
}

// NewFile constructs a Path explicitly tagged as a file, without probing.
func NewFile(p string) Path { return Path{abs: p, kind: KindFile} }

// NewDir constructs a Path explicitly tagged as a directory, without probing.
func NewDir(p string) Path { return Path{abs: p, kind: KindDir} }

// String returns the underlying textual path.
func (p Path) String() string { return p.abs }

// Kind reports whether p is a file or directory path.
func (p Path) Kind() Kind { return p.kind }

// IsFile reports whether p is tagged as a file path.
func (p Path) IsFile() bool { return p.kind == KindFile }

// IsDir reports whether p is tagged as a directory path.
func (p Path) IsDir() bool { return p.kind == KindDir }

// IsZero reports whether p is the zero value.
func (p Path) IsZero() bool { return p.abs == "" }

// Exists reports whether p currently exists on disk, regardless of kind.
func (p Path) Exists() bool {
	_, err := os.Stat(p.abs)
	return err == nil
}

// Stat returns the os.FileInfo for p.
func (p Path) Stat() (os.FileInfo, error) {
	return os.Stat(p.abs)
}

// Join concatenates p with other according to the following rules:
//
//   - directory + file  -> file
//   - directory + dir   -> dir
//   - directory + plain name -> kind resolved by probing the filesystem,
//     defaulting to directory when neither exists
//   - file + file, or any operand that is not a Path constructed by this
//     package, is an error
func (p Path) Join(name string, other ...Path) (Path, error) {
	if p.kind == KindUnknown {
		return Path{}, fmt.Errorf("%w: %q has unknown kind", ErrNotAPath, p.abs)
	}
	if len(other) > 0 {
		o := other[0]
		if p.kind == KindFile {
			return Path{}, fmt.Errorf("%w: %q + %q", ErrFileJoinFile, p.abs, o.abs)
		}
		joined := joinTextual(p.abs, o.abs)
		if o.kind == KindUnknown {
			return Path{}, fmt.Errorf("%w: right operand %q has unknown kind", ErrUnsupportedJoin, o.abs)
		}
		return Path{abs: joined, kind: o.kind}, nil
	}

	if p.kind == KindFile {
		return Path{}, fmt.Errorf("%w: %q + %q", ErrFileJoinFile, p.abs, name)
	}

	joined := joinTextual(p.abs, name)
	return New(joined, true)
}

// WithSuffix returns a new Path of the same Kind with suffix appended to
// the final path component. Backups append a ".<hex8>" suffix to either
// a file or a directory path, so this is valid for both kinds.
func (p Path) WithSuffix(suffix string) (Path, error) {
	if p.kind == KindUnknown {
		return Path{}, fmt.Errorf("%w: WithSuffix requires a known kind, got %q", ErrUnsupportedJoin, p.abs)
	}
	return Path{abs: p.abs + suffix, kind: p.kind}, nil
}

// StripSuffix removes exactly the last "."-delimited component from the
// textual path (e.g. "foo.1a2b3c4d" -> "foo"), preserving Kind. It
// returns ok=false if there is no "." in the base name.
func (p Path) StripSuffix() (stripped Path, ok bool) {
	idx := strings.LastIndex(p.abs, ".")
	slash := strings.LastIndex(p.abs, string(os.PathSeparator))
	if idx < 0 || idx < slash {
		return Path{}, false
	}
	return Path{abs: p.abs[:idx], kind: p.kind}, true
}

// Parent returns the directory Path containing p.
func (p Path) Parent() Path {
	slash := strings.LastIndex(p.abs, string(os.PathSeparator))
	if slash <= 0 {
		return Path{abs: string(os.PathSeparator), kind: KindDir}
	}
	return Path{abs: p.abs[:slash], kind: KindDir}
}

// Rename moves p to sibling on disk. p itself is not updated; sibling
// names the new location.
func (p Path) Rename(sibling Path) error {
	return os.Rename(p.abs, sibling.abs)
}

// Chmod sets p's mode bits.
func (p Path) Chmod(mode os.FileMode) error {
	return os.Chmod(p.abs, mode)
}

// ReadText reads the full textual contents of a file Path.
func (p Path) ReadText() (string, error) {
	if p.kind != KindFile {
		return "", fmt.Errorf("%w: ReadText requires a file path, got %q (%s)", ErrUnsupportedJoin, p.abs, p.kind)
	}
	b, err := os.ReadFile(p.abs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteText writes text to a file Path, creating or truncating it.
func (p Path) WriteText(text string, mode os.FileMode) error {
	if p.kind != KindFile {
		return fmt.Errorf("%w: WriteText requires a file path, got %q (%s)", ErrUnsupportedJoin, p.abs, p.kind)
	}
	return os.WriteFile(p.abs, []byte(text), mode)
}

func joinTextual(dir, name string) string {
	if strings.HasSuffix(dir, string(os.PathSeparator)) {
		return dir + name
	}
	return dir + string(os.PathSeparator) + name
}
