// Package partner defines the boundary the bridge drives on the partner
// ad network SDK. The concrete SDK is an external collaborator; this
// package only names the surface the adapter calls and the callback
// interfaces the SDK invokes back on its own goroutines.
//
// Callback delivery is asynchronous and unordered with respect to the
// caller, and terminal callbacks may fire more than once for one logical
// event. Callers must guard against both.
package partner

// Size is a partner-supported discrete banner size in
// density-independent units
type Size struct {
	W int
	H int
}

// LoadListener receives load lifecycle callbacks for one ad object
type LoadListener interface {
	// OnLoaded signals terminal load success
	OnLoaded()
	// OnLoadFailed signals terminal load failure with partner message text
	OnLoadFailed(reason string)
}

// ShowListener receives show lifecycle and side-channel callbacks for
// one ad object. OnShown and OnShowFailed are terminal for the show
// operation; the rest are side-channel and may fire zero-to-many times,
// before or after the terminal event.
type ShowListener interface {
	OnShown()
	OnShowFailed(reason string)
	OnImpression()
	OnClick()
	OnReward(label string, amount float64)
	OnDismissed()
}

// Banner is the partner's banner ad object. Banners have no asynchronous
// show confirmation and hold a disposable visual resource that must be
// released explicitly.
type Banner interface {
	SetMuted(muted bool)
	// Load issues a direct load with a fresh partner network request
	Load(listener LoadListener)
	// LoadWithMarkup loads from a won-auction payload without a fresh
	// network request
	LoadWithMarkup(markup string, listener LoadListener)
	// Show attaches the banner; it completes synchronously
	Show(listener ShowListener)
	// Release disposes the banner's visual resource
	Release()
}

// Fullscreen is the surface shared by all fullscreen ad objects.
// Fullscreen objects have no explicit release call; they are simply
// abandoned after use.
type Fullscreen interface {
	SetMuted(muted bool)
	// Ready reports synchronously whether the ad can be shown. A false
	// return at show time means no show callback will ever fire.
	Ready() bool
	Show(listener ShowListener)
}

// DirectFullscreen is a fullscreen ad object loaded via a fresh partner
// network request
type DirectFullscreen interface {
	Fullscreen
	Load(listener LoadListener)
}

// BidFullscreen is a fullscreen ad object loaded from a won-auction
// markup payload
type BidFullscreen interface {
	Fullscreen
	LoadWithMarkup(markup string, listener LoadListener)
}

// SDK is the partner library surface the adapter drives. Initialization
// is process-wide: set once by a single successful Init, read and never
// reset by everything after it.
type SDK interface {
	// Init performs one-time SDK setup from a configuration map. A
	// repeated Init after success is a no-op returning nil.
	Init(config map[string]string) error
	// Initialized reports the process-wide init flag
	Initialized() bool

	// Consent setters. Stateless pass-through of host consent signals.
	SetGDPRConsent(consent string, applies bool)
	SetUSPrivacy(privacyString string)
	SetCOPPA(childDirected bool)
	SetDoNotTrack(dnt bool)

	// Per-format ad object constructors.
	NewBanner(unitID string, size Size) (Banner, error)
	NewInterstitial(unitID string) (DirectFullscreen, error)
	NewInterstitialBid(unitID string) (BidFullscreen, error)
	NewRewarded(unitID string) (DirectFullscreen, error)
	NewRewardedBid(unitID string) (BidFullscreen, error)
}
