// Package passphrase resolves operator secrets from the environment with an
// interactive terminal fallback.
package passphrase

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a named secret from an environment variable or by
// prompting the operator. The value is cached after the first resolution so
// repeated calls reuse the same secret.
type Source struct {
	envVar string
	label  string

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a secret source that checks envVar before
// interactively prompting with the supplied label.
func NewSource(envVar, label string) *Source {
	return &Source{envVar: strings.TrimSpace(envVar), label: strings.TrimSpace(label)}
}

// Get returns the cached secret or resolves it on the first call. A set
// environment variable wins; without one the operator is prompted on stderr
// when stdin is a terminal. Headless processes without the variable resolve
// to empty, which callers treat as the credential staying unset, as does a
// source with no variable name at all. A variable that is set but blank is
// rejected so a typo never silently disables an admin surface the operator
// meant to protect.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar == "" {
			return
		}
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				s.err = fmt.Errorf("%s is set but empty", s.envVar)
				return
			}
			s.value = value
			return
		}

		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return
		}

		label := s.label
		if label == "" {
			label = "secret"
		}
		fmt.Fprintf(os.Stderr, "Enter %s (empty leaves it unset): ", label)
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			s.err = fmt.Errorf("read %s: %w", label, err)
			return
		}
		s.value = strings.TrimSpace(string(bytes))
	})

	return s.value, s.err
}
