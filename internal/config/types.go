package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that unmarshals from the "30s"/"2m" string
// form used in the YAML config and environment overrides. Text marshaling
// also covers JSON, so status payloads render durations readably.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler. Negative durations
// are rejected: every duration in the config is a timeout or interval.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret holds the platform API token or any other credential loaded from
// configuration. Every rendering path (fmt, JSON, text) shows a redaction
// marker; only Value returns the credential itself.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer so %#v cannot leak the value either.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual credential. Call it at the point of use, never
// to build log fields or serialized payloads.
func (s Secret) Value() string {
	return string(s)
}

// IsSet reports whether a credential was configured.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalText implements encoding.TextMarshaler, which also backs JSON
// marshaling of structs embedding a Secret.
func (s Secret) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(""), nil
	}
	return []byte("[REDACTED]"), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Raw values are
// accepted as-is; redaction only applies on the way out.
func (s *Secret) UnmarshalText(text []byte) error {
	*s = Secret(text)
	return nil
}
