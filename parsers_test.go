package boardlink

import (
	"errors"
	"math"
	"testing"
)

func TestFloatParser(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr bool
	}{
		{name: "integer", raw: "42", want: 42},
		{name: "decimal", raw: "12.75", want: 12.75},
		{name: "negative", raw: "-3.5", want: -3.5},
		{name: "surrounding whitespace", raw: "  7 \r", want: 7},
		{name: "exponent", raw: "1e3", want: 1000},
		{name: "empty", raw: "", wantErr: true},
		{name: "text", raw: "ERR", wantErr: true},
		{name: "trailing garbage", raw: "12cm", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FloatParser(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("FloatParser(%q) error = %v, want ErrMalformed", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FloatParser(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("FloatParser(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFieldParser(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		raw     string
		want    float64
		wantErr bool
	}{
		{name: "space separated", index: 1, raw: "12 34 56", want: 34},
		{name: "labelled pairs", index: 3, raw: "S1:42.0 S2:17.5", want: 17.5},
		{name: "comma separated", index: 2, raw: "1,2,3", want: 3},
		{name: "semicolons and tabs", index: 0, raw: "9.5;\t8", want: 9.5},
		{name: "repeated separators collapse", index: 1, raw: "a,,  5", want: 5},
		{name: "out of range", index: 5, raw: "1 2", wantErr: true},
		{name: "negative index", index: -1, raw: "1 2", wantErr: true},
		{name: "field not numeric", index: 0, raw: "S1:42", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FieldParser(tt.index)(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScaledParser(t *testing.T) {
	volts := ScaledParser(FloatParser, 5.0/1023, 0)

	got, err := volts("1023")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-5.0) > 1e-9 {
		t.Errorf("got %v, want 5", got)
	}

	celsius := ScaledParser(FloatParser, 0.5, -40)
	got, err = celsius("100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 10 {
		t.Errorf("got %v, want 10", got)
	}

	if _, err := volts("nope"); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestJSONFieldParser(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		raw     string
		want    float64
		wantErr bool
	}{
		{name: "top level", path: "value", raw: `{"value": 3.5}`, want: 3.5},
		{name: "nested", path: "imu.heading", raw: `{"imu": {"heading": 181.5}}`, want: 181.5},
		{name: "bool true", path: "ok", raw: `{"ok": true}`, want: 1},
		{name: "bool false", path: "ok", raw: `{"ok": false}`, want: 0},
		{name: "numeric string", path: "v", raw: `{"v": "12"}`, want: 12},
		{name: "missing field", path: "x", raw: `{"v": 1}`, wantErr: true},
		{name: "not an object", path: "a.b", raw: `{"a": 1}`, wantErr: true},
		{name: "non numeric", path: "v", raw: `{"v": [1]}`, wantErr: true},
		{name: "invalid json", path: "v", raw: `v=1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JSONFieldParser(tt.path)(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegexParser(t *testing.T) {
	p, err := RegexParser(`T=(-?[\d.]+)C`)
	if err != nil {
		t.Fatalf("RegexParser() error = %v", err)
	}

	got, err := p("board ok T=-12.5C fan=on")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != -12.5 {
		t.Errorf("got %v, want -12.5", got)
	}

	if _, err := p("no temperature"); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestRegexParser_Invalid(t *testing.T) {
	if _, err := RegexParser(`(`); err == nil {
		t.Error("expected error for invalid pattern")
	}
	if _, err := RegexParser(`\d+`); err == nil {
		t.Error("expected error for pattern without capture group")
	}
}

func TestMustRegexParser_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustRegexParser did not panic on an invalid pattern")
		}
	}()
	MustRegexParser(`[`)
}

func TestAckParser(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		raw     string
		want    float64
		wantErr bool
	}{
		{name: "default token", raw: "ACK", want: 1},
		{name: "case insensitive", raw: "ack", want: 1},
		{name: "whitespace", raw: " ACK \r", want: 1},
		{name: "custom token", token: "OK", raw: "ok", want: 1},
		{name: "nak", raw: "NAK", wantErr: true},
		{name: "custom token mismatch", token: "OK", raw: "ACK", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AckParser(tt.token)(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFirstMatch(t *testing.T) {
	p := FirstMatch(JSONFieldParser("value"), FloatParser)

	tests := []struct {
		raw  string
		want float64
	}{
		{raw: `{"value": 2}`, want: 2},
		{raw: "3.25", want: 3.25},
	}
	for _, tt := range tests {
		got, err := p(tt.raw)
		if err != nil {
			t.Fatalf("FirstMatch(%q) error = %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("FirstMatch(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}

	if _, err := p("garbage"); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestFirstMatch_Empty(t *testing.T) {
	if _, err := FirstMatch()("1"); !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}
