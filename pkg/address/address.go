// Package address parses backend-qualified path strings of the form
// [backend:]path. The backend segment may contain colons inside
// double-quoted groups, which is how backend option lists
// (key=value,key=value) with embedded colons are written.
package address

import (
	"errors"
	"fmt"
	"strings"
)

// Local is the reserved backend identifier for the local filesystem.
const Local = ":local:"

var ErrMalformedAddress = errors.New("malformed address")

// Address identifies a storage backend. Backend always carries its
// trailing colon, e.g. "s3:" or `:s3,env_auth=true:`. LocalAbsolute is
// set when the address came from an absolute local path.
type Address struct {
	Backend       string
	LocalAbsolute bool
}

func (a Address) IsLocal() bool {
	return a.Backend == Local
}

// FsName renders the backend the way the control plane expects it: the
// local sentinel becomes "/" for absolute paths and ":local:" otherwise,
// remote backends pass through verbatim.
func (a Address) FsName() string {
	if a.IsLocal() {
		if a.LocalAbsolute {
			return "/"
		}
		return Local
	}
	return a.Backend
}

// Parse splits s into its backend address and backend-relative path.
// When no backend segment is present the local sentinel is returned.
func Parse(s string) (Address, string, error) {
	backend, rest, err := Split(s)
	if err != nil {
		return Address{}, "", err
	}
	if backend == "" {
		backend = Local
	}
	addr := Address{Backend: backend}
	if addr.IsLocal() && strings.HasPrefix(rest, "/") {
		addr.LocalAbsolute = true
	}
	return addr, rest, nil
}

// Split finds the backend terminator in s and returns the backend
// (including its trailing colon, or "" when absent) and the remainder.
//
// The backend grammar is one or more chunks followed by a colon, where a
// chunk is either a run of characters other than ':' and '"' (optionally
// led by a single colon) or a double-quoted, possibly empty, string.
// Selection is greedy: the terminator is the last colon reachable
// through valid chunks. The parser does not interpret backend option
// syntax; it extracts the segment verbatim.
func Split(s string) (string, string, error) {
	last := -1
	seenChunk := false
	i := 0

scan:
	for i < len(s) {
		switch s[i] {
		case '"':
			j := strings.IndexByte(s[i+1:], '"')
			if j < 0 {
				return "", "", fmt.Errorf("%w: unterminated quote in %q", ErrMalformedAddress, s)
			}
			i += j + 2
			seenChunk = true
		case ':':
			if seenChunk {
				last = i
			}
			// A colon may also lead the next chunk, but only when
			// followed by a plain character. Anything else ends the
			// region where a backend terminator can still occur.
			if i+1 >= len(s) || s[i+1] == ':' || s[i+1] == '"' {
				break scan
			}
			i++
		default:
			for i < len(s) && s[i] != ':' && s[i] != '"' {
				i++
			}
			seenChunk = true
		}
	}

	if last < 0 {
		return "", s, nil
	}
	return s[:last+1], s[last+1:], nil
}
