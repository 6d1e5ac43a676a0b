package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Allowlist holds path and content patterns excluded from scrubbing.
//
// File format:
//
//	[allowlist]
//	paths = ['''^fixtures/''']
//	regexes = ['''sk-test-[a-z]+''']
type Allowlist struct {
	Paths   []string
	Regexes []string
}

// LoadAllowlist reads a TOML allowlist. A missing file yields an empty
// allowlist; invalid TOML or patterns are errors.
func LoadAllowlist(path string) (*Allowlist, error) {
	if path == "" {
		return &Allowlist{}, nil
	}

	var doc struct {
		Allowlist Allowlist `toml:"allowlist"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}

	for _, p := range append(append([]string{}, doc.Allowlist.Paths...), doc.Allowlist.Regexes...) {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: %q in %s: %v", ErrInvalidRegex, p, path, err)
		}
	}
	return &doc.Allowlist, nil
}
