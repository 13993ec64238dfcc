// Package mediation defines the request, event, and error types shared
// between the host-facing surface and the partner bridge internals.
package mediation

import "time"

// Format identifies the requested ad shape
type Format string

const (
	FormatBanner       Format = "banner"
	FormatInterstitial Format = "interstitial"
	FormatRewarded     Format = "rewarded"
)

// Valid reports whether the format is one the bridge can dispatch
func (f Format) Valid() bool {
	switch f {
	case FormatBanner, FormatInterstitial, FormatRewarded:
		return true
	}
	return false
}

// Request describes a single ad load attempt. Immutable once constructed;
// one Request is created per load call and discarded after resolution.
type Request struct {
	// Format is the requested ad shape
	Format Format
	// PlacementID is the host-side placement identifier
	PlacementID string
	// UnitID is the partner-side ad unit identifier
	UnitID string
	// Markup is an opaque won-auction payload; empty means a direct
	// (non-bid) load that triggers a fresh partner network request
	Markup string
	// Height is the requested banner height hint in density-independent
	// units; nil means no hint was given
	Height *int
	// Muted requests audio-muted playback on the partner handle
	Muted bool
}

// HasMarkup reports whether the request carries a bid markup payload
func (r *Request) HasMarkup() bool {
	return r.Markup != ""
}

// SideEvent carries the context of a side-channel notification
type SideEvent struct {
	HandleID    string
	PlacementID string
	Format      Format
	At          time.Time
}

// RewardEvent is the side-channel notification for an earned reward
type RewardEvent struct {
	SideEvent
	// Label is the partner-reported reward type, e.g. "coins"
	Label string
	// Amount is the partner-reported reward quantity
	Amount float64
}

// Listener receives side-channel notifications. It is long-lived and
// outlives any single resolution; events may arrive before or after the
// load/show outcome and zero-to-many times per handle.
type Listener interface {
	OnImpression(ev SideEvent)
	OnClick(ev SideEvent)
	OnReward(ev RewardEvent)
	OnDismiss(ev SideEvent)
}

// NopListener discards all side-channel notifications
type NopListener struct{}

func (NopListener) OnImpression(SideEvent) {}
func (NopListener) OnClick(SideEvent)      {}
func (NopListener) OnReward(RewardEvent)   {}
func (NopListener) OnDismiss(SideEvent)    {}

// Credential map keys used by Setup
const (
	CredentialAppID  = "app_id"
	CredentialAppKey = "app_key"
)

// Consent map keys used by the consent propagator
const (
	ConsentKeyGDPRApplies = "gdpr_applies"
	ConsentKeyGDPRConsent = "gdpr_consent"
	ConsentKeyUSPrivacy   = "us_privacy"
	ConsentKeyCOPPA       = "coppa"
	ConsentKeyDoNotTrack  = "dnt"
)
