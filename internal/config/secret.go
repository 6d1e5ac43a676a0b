package config

import "encoding/json"

const redacted = "[REDACTED]"

// Secret holds a credential read from the config file or environment.
// Every formatting path prints a placeholder; call Value for the real string.
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString covers %#v, which would otherwise print the raw string.
func (s Secret) GoString() string {
	return "config.Secret(" + redacted + ")"
}

// Value returns the credential itself.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a credential was configured.
func (s Secret) IsSet() bool {
	return s != ""
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
