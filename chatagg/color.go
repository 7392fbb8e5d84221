package chatagg

import (
	"fmt"
	"hash/fnv"

	"github.com/onnwee/stream-dock/canonical"
)

// displayAttrs computes the per-source label, color, and label visibility.
// Label precedence: streamer nickname, then record title, then raw id.
// Color precedence: streamer platform color, master color, then a
// deterministic hash of the canonical key so the same source always renders
// the same color without persisted state.
func displayAttrs(k canonical.Key, resolver Resolver) (label, color string, show bool) {
	label, color, show = k.ID(), "", true
	if resolver != nil {
		if s, ok := resolver.StreamerFor(k); ok {
			if s.Nickname != "" {
				label = s.Nickname
			}
			if c, ok := s.Colors[k.Platform()]; ok && c != "" {
				color = c
			} else if s.Color != "" {
				color = s.Color
			}
			show = !s.HideLabel
		} else if rec, ok := resolver.Resolve(k); ok && rec.Title != "" {
			label = rec.Title
		}
	}
	if color == "" {
		color = hashColor(k)
	}
	return label, color, show
}

// hashColor derives a stable, readable color from the key: the FNV hash
// picks a hue, saturation and lightness are fixed to keep text legible on a
// dark background.
func hashColor(k canonical.Key) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k))
	hue := float64(h.Sum32() % 360)
	r, g, b := hslToRGB(hue, 0.65, 0.60)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	c := (1 - abs(2*l-1)) * s
	x := c * (1 - abs(mod(h/60, 2)-1))
	m := l - c/2
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return uint8((r + m) * 255), uint8((g + m) * 255), uint8((b + m) * 255)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func mod(a, b float64) float64 {
	for a >= b {
		a -= b
	}
	return a
}
