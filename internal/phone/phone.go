// Package phone turns raw caller numbers into the digit-only key used by
// call claims and extension mappings.
package phone

import "strings"

const (
	DefaultCountryCode    = "386"
	DefaultNationalLength = 8
)

// Normalizer maps raw phone strings onto a canonical digit-only key.
//
// Rules, applied to the digits of the input:
//   - no leading zero: already international, kept as is
//   - one leading zero (national trunk prefix): replaced by CountryCode
//   - two or more leading zeros (international prefix): dropped, unless what
//     remains is exactly NationalLength digits, which is treated as a national
//     number dialled with a doubled trunk prefix
//
// Results never start with 0, so normalizing a key again is a no-op.
type Normalizer struct {
	CountryCode    string
	NationalLength int
}

var std = Normalizer{CountryCode: DefaultCountryCode, NationalLength: DefaultNationalLength}

// Normalize uses the default Slovenian numbering rules.
func Normalize(raw string) string { return std.Normalize(raw) }

func (n Normalizer) Normalize(raw string) string {
	d := Digits(raw)
	core := strings.TrimLeft(d, "0")
	if core == "" {
		return ""
	}
	zeros := len(d) - len(core)
	switch {
	case zeros == 0:
		return core
	case zeros == 1:
		return n.CountryCode + core
	case n.NationalLength > 0 && len(core) == n.NationalLength:
		return n.CountryCode + core
	default:
		return core
	}
}

// Digits strips every non-digit character.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Format renders a normalized key for people: domestic numbers in the local
// "051 395 476" form, everything else as "+<digits>".
func (n Normalizer) Format(norm string) string {
	d := Digits(norm)
	if d == "" {
		return norm
	}
	if n.CountryCode != "" && strings.HasPrefix(d, n.CountryCode) {
		local := "0" + strings.TrimLeft(d[len(n.CountryCode):], "0")
		if len(local) >= 9 {
			return local[:3] + " " + local[3:6] + " " + local[6:]
		}
		return local
	}
	return "+" + d
}

func Format(norm string) string { return std.Format(norm) }
