package util

import "testing"

func TestParseQty(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  float64
		unit  string
	}{
		{name: "units", input: "Iogurte Natural 4 un", want: 4, unit: "un"},
		{name: "decimal comma", input: "Bananas 1,5 kg", want: 1.5, unit: "kg"},
		{name: "decimal dot", input: "Bananas 1.5 kg", want: 1.5, unit: "kg"},
		{name: "thousand dot", input: "Arroz 1.000 g", want: 1000, unit: "g"},
		{name: "size and qty", input: "Leite 1L 6 un", want: 6, unit: "l"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := ParseQty(tc.input)
			if parsed.Qty == nil {
				t.Fatalf("qty is nil")
			}
			if *parsed.Qty != tc.want {
				t.Fatalf("got %v want %v", *parsed.Qty, tc.want)
			}
			if parsed.Unit == nil || *parsed.Unit != tc.unit {
				t.Fatalf("unit got %v want %s", parsed.Unit, tc.unit)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		input string
		want  float64
		ok    bool
	}{
		{input: "€ 2,49", want: 2.49, ok: true},
		{input: "2.49€", want: 2.49, ok: true},
		{input: "1.234,56 €", want: 1234.56, ok: true},
		{input: "EUR 3", want: 3, ok: true},
		{input: "12,5 €/kg", want: 12.5, ok: true},
		{input: "grátis", ok: false},
	}
	for _, tc := range cases {
		got, ok := ParsePrice(tc.input)
		if ok != tc.ok {
			t.Fatalf("%q: ok=%v want %v", tc.input, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("%q: got %v want %v", tc.input, got, tc.want)
		}
	}
}

func TestParseSize(t *testing.T) {
	cases := []struct {
		input string
		value float64
		unit  string
	}{
		{input: "250g", value: 250, unit: "g"},
		{input: "Manteiga 0,25 kg", value: 250, unit: "g"},
		{input: "1L", value: 1000, unit: "ml"},
		{input: "33 cl", value: 330, unit: "ml"},
		{input: "Água 6x1,5L", value: 9000, unit: "ml"},
	}
	for _, tc := range cases {
		got, ok := ParseSize(tc.input)
		if !ok {
			t.Fatalf("%q: not parsed", tc.input)
		}
		if got.Value != tc.value || got.Unit != tc.unit {
			t.Fatalf("%q: got %+v", tc.input, got)
		}
	}
	if _, ok := ParseSize("Pão de forma"); ok {
		t.Fatal("expected no size")
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  Leite  Meio-Gordo ÁGUA "); got != "leite meio-gordo agua" {
		t.Fatalf("got %q", got)
	}
	if !EqualNames("Pão Caseiro", "pao caseiro") {
		t.Fatal("expected equal names")
	}
	tokens := Tokenize("Butter 250g, Brand X", 2)
	if len(tokens) != 3 || tokens[0] != "butter" || tokens[1] != "250g" || tokens[2] != "brand" {
		t.Fatalf("tokens=%v", tokens)
	}
}
