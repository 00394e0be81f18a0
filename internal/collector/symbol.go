package collector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/newthinker/nvtrotate/internal/core"
)

var validTicker = regexp.MustCompile(`^[A-Z0-9]{1,15}$`)

// NormalizeSymbol upper-cases a ticker and strips whitespace.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateSymbol checks that a ticker is safe to put in URLs and cache keys.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("symbol cannot be empty"))
	}
	if !validTicker.MatchString(symbol) {
		return core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("invalid symbol format: %s", symbol))
	}
	return nil
}
