package output

import (
	"testing"
)

func TestRoundFloat(t *testing.T) {
	tests := []struct {
		name  string
		input float64
		want  float64
	}{
		{name: "round to 6 decimal places", input: 0.123456789, want: 0.123457},
		{name: "no rounding needed", input: 0.123456, want: 0.123456},
		{name: "round down", input: 0.1234564, want: 0.123456},
		{name: "zero", input: 0.0, want: 0.0},
		{name: "negative", input: -0.123456789, want: -0.123457},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RoundFloat(tt.input); got != tt.want {
				t.Errorf("RoundFloat(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0.5, "0.5"},
		{1.0, "1"},
		{0.123456789, "0.123457"},
		{0, "0"},
	}

	for _, tt := range tests {
		if got := FormatFloat(tt.input); got != tt.want {
			t.Errorf("FormatFloat(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		part, total int
		want        float64
	}{
		{2, 3, 66.67},
		{1, 3, 33.33},
		{3, 3, 100},
		{0, 5, 0},
		{0, 0, 0},
		{5, 0, 0},
	}

	for _, tt := range tests {
		if got := Percentage(tt.part, tt.total); got != tt.want {
			t.Errorf("Percentage(%d, %d) = %v, want %v", tt.part, tt.total, got, tt.want)
		}
	}
}
