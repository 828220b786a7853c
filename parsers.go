package boardlink

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FloatParser parses the whole response as a decimal number.
//
// This is the parser used when a [Component] has none configured.
var FloatParser ResponseParser = func(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrMalformed, raw)
	}
	return v, nil
}

// FieldParser returns a [ResponseParser] that splits the response on
// whitespace, commas, colons and semicolons and parses field i (zero based).
//
// Example:
//
//	// response "S1:42.0 S2:17.5", value 17.5
//	parser := boardlink.FieldParser(3)
func FieldParser(i int) ResponseParser {
	return func(raw string) (float64, error) {
		fields := strings.FieldsFunc(raw, isFieldSeparator)
		if i < 0 || i >= len(fields) {
			return 0, fmt.Errorf("%w: %q has no field %d", ErrMalformed, raw, i)
		}
		return FloatParser(fields[i])
	}
}

func isFieldSeparator(r rune) bool {
	switch r {
	case ' ', '\t', ',', ':', ';':
		return true
	default:
		return false
	}
}

// ScaledParser returns a [ResponseParser] that applies value*scale + offset
// to the result of p. Use it to turn raw ADC counts into engineering units.
//
// Example:
//
//	// 10-bit ADC, 5V reference
//	volts := boardlink.ScaledParser(boardlink.FloatParser, 5.0/1023, 0)
func ScaledParser(p ResponseParser, scale, offset float64) ResponseParser {
	return func(raw string) (float64, error) {
		v, err := p(raw)
		if err != nil {
			return 0, err
		}
		return v*scale + offset, nil
	}
}

// JSONFieldParser returns a [ResponseParser] that reads a number from a JSON
// response using dot notation to navigate nested objects.
//
// Booleans map to 1 and 0; strings holding a number are parsed.
//
// Example:
//
//	// response {"imu": {"heading": 181.5}}
//	parser := boardlink.JSONFieldParser("imu.heading")
func JSONFieldParser(path string) ResponseParser {
	parts := strings.Split(path, ".")

	return func(raw string) (float64, error) {
		var data interface{}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return 0, fmt.Errorf("%w: invalid JSON: %v", ErrMalformed, err)
		}

		current := data
		for _, part := range parts {
			obj, ok := current.(map[string]interface{})
			if !ok {
				return 0, fmt.Errorf("%w: no field %q", ErrMalformed, path)
			}
			current, ok = obj[part]
			if !ok {
				return 0, fmt.Errorf("%w: no field %q", ErrMalformed, path)
			}
		}

		switch v := current.(type) {
		case float64:
			return v, nil
		case bool:
			if v {
				return 1, nil
			}
			return 0, nil
		case string:
			return FloatParser(v)
		default:
			return 0, fmt.Errorf("%w: field %q is not numeric", ErrMalformed, path)
		}
	}
}

// RegexParser returns a [ResponseParser] that parses the first capture
// group of pattern as a number.
//
// Returns an error if the pattern is invalid or has no capture group.
//
// Example:
//
//	parser, err := boardlink.RegexParser(`T=(-?[\d.]+)C`)
func RegexParser(pattern string) (ResponseParser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("pattern %q needs a capture group", pattern)
	}

	return func(raw string) (float64, error) {
		matches := re.FindStringSubmatch(raw)
		if len(matches) < 2 {
			return 0, fmt.Errorf("%w: %q does not match %s", ErrMalformed, raw, pattern)
		}
		return FloatParser(matches[1])
	}, nil
}

// MustRegexParser is like [RegexParser] but panics if the pattern is
// invalid. Use it for constant patterns.
func MustRegexParser(pattern string) ResponseParser {
	parser, err := RegexParser(pattern)
	if err != nil {
		panic("boardlink: invalid regex pattern: " + err.Error())
	}
	return parser
}

// DefaultAckToken is the acknowledgement actuator boards reply with.
const DefaultAckToken = "ACK"

// AckParser returns a [ResponseParser] for actuator commands that are
// answered with a fixed token. A matching response (case-insensitive)
// yields 1; anything else is malformed. An empty token means
// [DefaultAckToken].
func AckParser(token string) ResponseParser {
	if token == "" {
		token = DefaultAckToken
	}
	return func(raw string) (float64, error) {
		if strings.EqualFold(strings.TrimSpace(raw), token) {
			return 1, nil
		}
		return 0, fmt.Errorf("%w: expected %s, got %q", ErrMalformed, token, raw)
	}
}

// FirstMatch returns a [ResponseParser] that tries parsers in order and
// returns the first value parsed without error. If all fail, the last
// error is returned.
//
// Example:
//
//	// newer firmware answers JSON, older answers a bare number
//	parser := boardlink.FirstMatch(
//	    boardlink.JSONFieldParser("value"),
//	    boardlink.FloatParser,
//	)
func FirstMatch(parsers ...ResponseParser) ResponseParser {
	return func(raw string) (float64, error) {
		err := fmt.Errorf("%w: no parser configured", ErrMalformed)
		for _, p := range parsers {
			var v float64
			if v, err = p(raw); err == nil {
				return v, nil
			}
		}
		return 0, err
	}
}
