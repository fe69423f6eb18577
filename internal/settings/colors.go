package settings

import (
	"fmt"
	"regexp"
	"strings"
)

var hexColor = regexp.MustCompile(`^#?([0-9a-fA-F]{6})$`)

// namedColors covers the palette operators actually reach for. Anything
// else must be given as a 6-digit hex code.
var namedColors = map[string]string{
	"black":   "#000000",
	"white":   "#ffffff",
	"red":     "#e74c3c",
	"green":   "#2ecc71",
	"blue":    "#3498db",
	"yellow":  "#f1c40f",
	"orange":  "#e67e22",
	"purple":  "#9b59b6",
	"pink":    "#e91e63",
	"teal":    "#1abc9c",
	"gold":    "#f1c40f",
	"magenta": "#e91e63",
	"grey":    "#95a5a6",
	"gray":    "#95a5a6",
	"blurple": "#5865f2",
}

// normalizeColor resolves a color name or hex code to canonical
// "#rrggbb" lowercase form.
func normalizeColor(value string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if hex, ok := namedColors[v]; ok {
		return hex, nil
	}
	if m := hexColor.FindStringSubmatch(v); m != nil {
		return "#" + strings.ToLower(m[1]), nil
	}
	return "", fmt.Errorf("%w: %q is not a known color name or hex code", ErrInvalidConfig, value)
}
