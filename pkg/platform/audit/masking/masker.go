package masking

import (
	"strings"
	"unicode/utf8"
)

// Strategy redacts the value stored under a sensitive field name.
type Strategy func(Value) Value

const (
	nationalIDLength = 12
	taxIDLength      = 10
	keepTail         = 4

	nationalIDPrefix = "XXXX-XXXX-"
	nationalIDOpaque = "XXXX-XXXX-XXXX"
	taxIDPrefix      = "XXXXXX"
)

// Masker walks a Value and applies a Strategy to every field whose name
// (case-insensitive) is registered. It holds no mutable state after
// construction and is safe for concurrent use.
type Masker struct {
	strategies map[string]Strategy
}

// Option configures a Masker.
type Option func(*Masker)

// WithField registers a strategy for a field name.
func WithField(name string, s Strategy) Option {
	return func(m *Masker) {
		m.strategies[strings.ToLower(name)] = s
	}
}

// New builds a Masker with only the given fields registered.
func New(opts ...Option) *Masker {
	m := &Masker{strategies: make(map[string]Strategy)}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Field names masked by Default. CredentialFields covers login and session
// bodies, which pass through the recorder like any other mutation.
var (
	NationalIDFields = []string{"aadhaar", "aadhaarnumber", "aadhaar_number", "aadhaarno", "national_id", "nationalid"}
	TaxIDFields      = []string{"pan", "pannumber", "pan_number", "panno", "tax_id", "taxid"}
	CredentialFields = []string{
		"password", "newpassword", "new_password", "currentpassword", "current_password",
		"token", "access_token", "accesstoken", "refresh_token", "refreshtoken", "id_token",
		"secret", "client_secret", "clientsecret",
	}
)

// Default returns the masker used by the audit recorder.
func Default(extra ...Option) *Masker {
	opts := make([]Option, 0, len(NationalIDFields)+len(TaxIDFields)+len(CredentialFields)+len(extra))
	for _, f := range NationalIDFields {
		opts = append(opts, WithField(f, NationalID))
	}
	for _, f := range TaxIDFields {
		opts = append(opts, WithField(f, TaxID))
	}
	for _, f := range CredentialFields {
		opts = append(opts, WithField(f, Redact))
	}
	return New(append(opts, extra...)...)
}

// Mask returns a redacted deep copy of v. The input is never modified.
func (m *Masker) Mask(v Value) Value {
	switch v.kind {
	case KindMap:
		fields := make([]Field, len(v.fields))
		for i, f := range v.fields {
			if s, ok := m.strategies[strings.ToLower(f.Key)]; ok {
				fields[i] = Field{Key: f.Key, Value: s(f.Value)}
				continue
			}
			fields[i] = Field{Key: f.Key, Value: m.Mask(f.Value)}
		}
		return Map(fields...)
	case KindList:
		items := make([]Value, len(v.items))
		for i, item := range v.items {
			items[i] = m.Mask(item)
		}
		return List(items...)
	default:
		return v
	}
}

// NationalID keeps the last four digits of a 12-digit identifier. Spaces and
// hyphens are ignored; anything else becomes a fully opaque placeholder.
func NationalID(v Value) Value {
	if v.IsNull() {
		return v
	}
	raw, ok := scalarText(v)
	if !ok {
		return String(nationalIDOpaque)
	}
	cleaned := stripSeparators(raw)
	if len(cleaned) != nationalIDLength || !allDigits(cleaned) {
		return String(nationalIDOpaque)
	}
	return String(nationalIDPrefix + cleaned[nationalIDLength-keepTail:])
}

// TaxID keeps the last four characters of a 10-character identifier. A value
// of any other length becomes X repeated to its original length.
func TaxID(v Value) Value {
	if v.IsNull() {
		return v
	}
	raw, ok := scalarText(v)
	if !ok {
		return String(strings.Repeat("X", taxIDLength))
	}
	cleaned := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(cleaned)
	if n != taxIDLength {
		return String(strings.Repeat("X", utf8.RuneCountInString(raw)))
	}
	runes := []rune(cleaned)
	return String(taxIDPrefix + string(runes[n-keepTail:]))
}

// Redact replaces any non-null value with a fixed placeholder.
func Redact(v Value) Value {
	if v.IsNull() {
		return v
	}
	return String("[REDACTED]")
}

func scalarText(v Value) (string, bool) {
	switch v.kind {
	case KindString, KindNumber:
		return v.text, true
	default:
		return "", false
	}
}

func stripSeparators(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
