// Package canonical turns structured metadata into a deterministic byte string and hashes it.
//
// Canonical form is compact JSON with object keys sorted by byte order, no HTML escaping,
// NFC-normalized strings and a single textual form per number. Two documents with the same
// logical content always produce identical bytes, whatever the key insertion order.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxExponent bounds the exponent of a JSON number.
const maxExponent = 1 << 20

// Canonicalize serializes v into canonical JSON bytes.
//
// v may be any JSON-marshalable value, a json.RawMessage or raw JSON bytes. Struct field
// order never leaks into the output because the value is first decoded into generic maps.
func Canonicalize(v any) ([]byte, error) {
	raw, err := toJSON(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCanonicalizable, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrNotCanonicalizable)
	}

	normalized, err := normalize(generic)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotCanonicalizable, err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MustCanonicalize is Canonicalize for values known to be serializable, such as fixed test fixtures.
func MustCanonicalize(v any) []byte {
	b, err := Canonicalize(v)
	if err != nil {
		panic(err)
	}
	return b
}

func toJSON(v any) ([]byte, error) {
	switch val := v.(type) {
	case json.RawMessage:
		return val, nil
	case []byte:
		return val, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotCanonicalizable, err)
		}
		return b, nil
	}
}

// normalize rewrites decoded JSON so that encoding/json produces a single form:
// maps are re-keyed with NFC keys (the encoder sorts them), strings are NFC and
// numbers are reduced to their shortest exact decimal representation.
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			nk := norm.NFC.String(k)
			if _, dup := out[nk]; dup {
				return nil, fmt.Errorf("%w: keys collide after normalization: %q", ErrNotCanonicalizable, nk)
			}
			nv, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[nk] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			nv, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case string:
		return norm.NFC.String(val), nil
	case json.Number:
		return normalizeNumber(val)
	case bool, nil:
		return val, nil
	default:
		return nil, fmt.Errorf("%w: unexpected type %T", ErrNotCanonicalizable, v)
	}
}

// normalizeNumber rewrites a JSON number into its exact shortest decimal form. Digits are
// never routed through float64, so integers beyond 2^53 and long decimals keep their value.
// Layout follows the ECMAScript Number-to-String rules: plain notation while the decimal
// point sits within 21 digits (or up to 6 zeros after it), exponent notation otherwise.
func normalizeNumber(n json.Number) (json.Number, error) {
	s := n.String()
	neg, digits, exp, err := splitNumber(s)
	if err != nil {
		return "", fmt.Errorf("%w: number %q: %v", ErrNotCanonicalizable, s, err)
	}
	if digits == "" {
		return "0", nil
	}

	// value = 0.digits * 10^point
	point := len(digits) + exp
	var out strings.Builder
	if neg {
		out.WriteByte('-')
	}
	switch {
	case len(digits) <= point && point <= 21:
		out.WriteString(digits)
		out.WriteString(strings.Repeat("0", point-len(digits)))
	case 0 < point && point <= 21:
		out.WriteString(digits[:point])
		out.WriteByte('.')
		out.WriteString(digits[point:])
	case -6 < point && point <= 0:
		out.WriteString("0.")
		out.WriteString(strings.Repeat("0", -point))
		out.WriteString(digits)
	default:
		out.WriteString(digits[:1])
		if len(digits) > 1 {
			out.WriteByte('.')
			out.WriteString(digits[1:])
		}
		e := point - 1
		out.WriteByte('e')
		if e >= 0 {
			out.WriteByte('+')
		}
		out.WriteString(strconv.Itoa(e))
	}
	return json.Number(out.String()), nil
}

// splitNumber breaks a JSON number into its sign, significant digits without leading or
// trailing zeros and the power of ten they are scaled by. Zero yields empty digits.
func splitNumber(s string) (neg bool, digits string, exp int, err error) {
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	mantissa := s
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		mantissa = s[:i]
		exp, err = strconv.Atoi(strings.TrimPrefix(s[i+1:], "+"))
		if err != nil {
			return false, "", 0, errors.New("exponent out of range")
		}
		if exp > maxExponent || exp < -maxExponent {
			return false, "", 0, errors.New("exponent out of range")
		}
	}
	intPart, frac, _ := strings.Cut(mantissa, ".")
	if intPart == "" || strings.Trim(intPart+frac, "0123456789") != "" {
		return false, "", 0, errors.New("malformed number")
	}

	digits = intPart + frac
	exp -= len(frac)
	digits = strings.TrimLeft(digits, "0")
	trimmed := strings.TrimRight(digits, "0")
	exp += len(digits) - len(trimmed)
	if trimmed == "" {
		return false, "", 0, nil
	}
	return neg, trimmed, exp, nil
}
