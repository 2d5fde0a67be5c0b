// Package hoardpath implements the normalized POSIX path type used to
// address files inside the hoard and inside individual caves.
//
// Ported from original_source/command/fast_path.py's FastPosixPath: a path
// is either absolute (rooted at "/") or relative, and is stored pre-split
// into components so relativity checks never re-parse a string.
package hoardpath

import (
	"strings"

	"github.com/madcowbg/hoard/pkg/hoarderr"
)

// Path is a POSIX path: either absolute ("/a/b") or relative ("a/b"),
// with no "." components and no empty segments. ".." components are kept
// as they are, not resolved.
type Path struct {
	absolute bool
	parts    []string
}

// Root is the absolute empty path "/".
var Root = Path{absolute: true, parts: nil}

// Empty is the relative empty path ".".
var Empty = Path{absolute: false, parts: nil}

// New parses a POSIX path string into a Path.
func New(raw string) Path {
	if raw == "" || raw == "." {
		return Empty
	}
	if raw == "/" {
		return Root
	}
	absolute := strings.HasPrefix(raw, "/")
	trimmed := strings.Trim(raw, "/")
	var parts []string
	if trimmed != "" {
		for _, p := range strings.Split(trimmed, "/") {
			if p == "" || p == "." {
				continue
			}
			parts = append(parts, p)
		}
	}
	return Path{absolute: absolute, parts: parts}
}

// FromParts builds a Path directly from its absoluteness and components,
// mirroring FastPosixPath's (is_absolute, remainder) constructor form.
func FromParts(absolute bool, parts []string) Path {
	cp := make([]string, len(parts))
	copy(cp, parts)
	return Path{absolute: absolute, parts: cp}
}

func (p Path) IsAbsolute() bool { return p.absolute }

// Parts returns the path's components; callers must not mutate the result.
func (p Path) Parts() []string { return p.parts }

// AsPosix renders the path in POSIX form.
func (p Path) AsPosix() string {
	if len(p.parts) == 0 {
		if p.absolute {
			return "/"
		}
		return "."
	}
	joined := strings.Join(p.parts, "/")
	if p.absolute {
		return "/" + joined
	}
	return joined
}

func (p Path) String() string { return p.AsPosix() }

// Less orders paths by their "/"-joined representation, matching
// FastPosixPath's __lt__.
func (p Path) Less(other Path) bool { return p.AsPosix() < other.AsPosix() }

// Equal compares paths by their normalized representation.
func (p Path) Equal(other Path) bool { return p.absolute == other.absolute && sameParts(p.parts, other.parts) }

func sameParts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IsRelativeTo reports whether p has other as a prefix (same absoluteness,
// component-wise prefix match).
func (p Path) IsRelativeTo(other Path) bool {
	if p.absolute != other.absolute {
		return false
	}
	if len(other.parts) > len(p.parts) {
		return false
	}
	return sameParts(p.parts[:len(other.parts)], other.parts)
}

// RelativeTo returns p expressed relative to other. Errors with
// hoarderr.BadPath if p is not relative to other.
func (p Path) RelativeTo(other Path) (Path, error) {
	if !p.IsRelativeTo(other) {
		return Path{}, hoarderr.New(hoarderr.BadPath, p.AsPosix()+" is not relative to "+other.AsPosix())
	}
	return FromParts(false, p.parts[len(other.parts):]), nil
}

// JoinPath appends a relative path to p. Errors with hoarderr.BadPath if
// other is absolute.
func (p Path) JoinPath(other Path) (Path, error) {
	if other.absolute {
		return Path{}, hoarderr.New(hoarderr.BadPath, "cannot join absolute path "+other.AsPosix())
	}
	return FromParts(p.absolute, append(append([]string{}, p.parts...), other.parts...)), nil
}

// RelativeToMount translates a hoard-absolute path into the local path
// inside a cave mounted at mountPoint: hoardPath must be relative to
// mountPoint.
func RelativeToMount(hoardPath, mountPoint Path) (Path, error) {
	if !hoardPath.absolute || !mountPoint.absolute {
		return Path{}, hoarderr.New(hoarderr.BadPath, "mount translation requires absolute paths")
	}
	return hoardPath.RelativeTo(mountPoint)
}

// ToHoardPath is the inverse of RelativeToMount: it resolves a cave-local
// path to its hoard-absolute path given the cave's mount point.
func ToHoardPath(localPath, mountPoint Path) (Path, error) {
	if localPath.absolute {
		return Path{}, hoarderr.New(hoarderr.BadPath, "local path must be relative, got "+localPath.AsPosix())
	}
	if !mountPoint.absolute {
		return Path{}, hoarderr.New(hoarderr.BadPath, "mount point must be absolute, got "+mountPoint.AsPosix())
	}
	return mountPoint.JoinPath(localPath)
}
