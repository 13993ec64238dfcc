// Package size maps an abstract requested banner height onto the
// partner's discrete supported size buckets.
package size

import "github.com/admeshlabs/mediation-bridge/internal/partner"

// Partner-supported banner buckets
var (
	// Standard is the default 320x50 banner
	Standard = partner.Size{W: 320, H: 50}
	// Leaderboard is the 728x90 tablet banner
	Leaderboard = partner.Size{W: 728, H: 90}
	// MediumRectangle is the 300x250 MREC
	MediumRectangle = partner.Size{W: 300, H: 250}
)

// Negotiate maps a requested height in density-independent units to the
// nearest partner-supported bucket. A nil height, or any height below 50
// (including zero and negative), falls to the standard banner.
func Negotiate(height *int) partner.Size {
	if height == nil {
		return Standard
	}
	h := *height
	switch {
	case h >= 50 && h < 90:
		return Standard
	case h >= 90 && h < 250:
		return Leaderboard
	case h >= 250:
		return MediumRectangle
	}
	return Standard
}
