package collector

import (
	"errors"
	"testing"

	"github.com/newthinker/nvtrotate/internal/core"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"BTC", "BTC"},
		{"btc", "BTC"},
		{" eth ", "ETH"},
		{"Theta", "THETA"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got := NormalizeSymbol(tc.input)
			if got != tc.expected {
				t.Errorf("NormalizeSymbol(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestValidateSymbol(t *testing.T) {
	tests := []struct {
		name    string
		symbol  string
		wantErr bool
	}{
		{"valid symbol", "BTC", false},
		{"digits", "1INCH", false},
		{"empty symbol", "", true},
		{"lowercase", "btc", true},
		{"too long", "VERYLONGSYMBOLNAME", true},
		{"invalid chars", "BTC!", true},
		{"path injection", "../etc/passwd", true},
		{"url injection", "BTC?foo=bar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSymbol(tt.symbol)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSymbol(%q) error = %v, wantErr %v", tt.symbol, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrInvalidSymbol) {
				t.Errorf("expected ErrInvalidSymbol, got %v", err)
			}
		})
	}
}
