// Package sim implements a simulated partner SDK for exercising the
// bridge without real partner credentials. Callback timing, fill rate,
// duplicate firings, and dropped callbacks are all configurable, so the
// simulator can reproduce the partner behaviors the bridge defends
// against.
package sim

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/admeshlabs/mediation-bridge/internal/partner"
	"github.com/admeshlabs/mediation-bridge/pkg/logger"
)

// Config controls simulated partner behavior
type Config struct {
	// Latency is the delay before a load callback fires
	Latency time.Duration
	// FillRate is the probability a load succeeds (0.0-1.0)
	FillRate float64
	// DuplicateTerminals makes every terminal callback fire twice,
	// reproducing the multi-fire behavior seen in real partner SDKs
	DuplicateTerminals bool
	// DropLoadCallbacks makes loads never resolve, for cancellation and
	// timeout testing
	DropLoadCallbacks bool
	// NeverReady makes fullscreen ads report not-ready at show time
	NeverReady bool
}

// DefaultConfig returns an always-filling simulator with modest latency
func DefaultConfig() Config {
	return Config{
		Latency:  50 * time.Millisecond,
		FillRate: 1.0,
	}
}

// SDK is the simulated partner library
type SDK struct {
	cfg Config

	mu          sync.Mutex
	initialized bool
	appID       string

	gdprConsent string
	gdprApplies bool
	usPrivacy   string
	coppa       bool
	dnt         bool
}

// New creates a simulated partner SDK
func New(cfg Config) *SDK {
	return &SDK{cfg: cfg}
}

// Init records the credential map and sets the process-wide flag
func (s *SDK) Init(config map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	appID := config["app_id"]
	if appID == "" {
		return errors.New("sim: app_id required")
	}
	s.appID = appID
	s.initialized = true
	lg := logger.Partner()
	lg.Info().Str("app_id", appID).Msg("simulated partner SDK initialized")
	return nil
}

// Initialized reports the process-wide init flag
func (s *SDK) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// SetGDPRConsent records the GDPR signal
func (s *SDK) SetGDPRConsent(consent string, applies bool) {
	s.mu.Lock()
	s.gdprConsent = consent
	s.gdprApplies = applies
	s.mu.Unlock()
}

// SetUSPrivacy records the CCPA signal
func (s *SDK) SetUSPrivacy(v string) {
	s.mu.Lock()
	s.usPrivacy = v
	s.mu.Unlock()
}

// SetCOPPA records the child-directed flag
func (s *SDK) SetCOPPA(v bool) {
	s.mu.Lock()
	s.coppa = v
	s.mu.Unlock()
}

// SetDoNotTrack records the do-not-track flag
func (s *SDK) SetDoNotTrack(v bool) {
	s.mu.Lock()
	s.dnt = v
	s.mu.Unlock()
}

// NewBanner creates a simulated banner object
func (s *SDK) NewBanner(unitID string, size partner.Size) (partner.Banner, error) {
	return &ad{sdk: s, unitID: unitID, size: size}, nil
}

// NewInterstitial creates a simulated direct interstitial
func (s *SDK) NewInterstitial(unitID string) (partner.DirectFullscreen, error) {
	return &ad{sdk: s, unitID: unitID}, nil
}

// NewInterstitialBid creates a simulated bid interstitial
func (s *SDK) NewInterstitialBid(unitID string) (partner.BidFullscreen, error) {
	return &ad{sdk: s, unitID: unitID}, nil
}

// NewRewarded creates a simulated direct rewarded ad
func (s *SDK) NewRewarded(unitID string) (partner.DirectFullscreen, error) {
	return &ad{sdk: s, unitID: unitID, rewarded: true}, nil
}

// NewRewardedBid creates a simulated bid rewarded ad
func (s *SDK) NewRewardedBid(unitID string) (partner.BidFullscreen, error) {
	return &ad{sdk: s, unitID: unitID, rewarded: true}, nil
}

// ad is one simulated partner ad object
type ad struct {
	sdk      *SDK
	unitID   string
	size     partner.Size
	rewarded bool

	mu     sync.Mutex
	muted  bool
	loaded bool
}

func (a *ad) SetMuted(m bool) {
	a.mu.Lock()
	a.muted = m
	a.mu.Unlock()
}

func (a *ad) Load(l partner.LoadListener) {
	a.deliverLoad(l)
}

func (a *ad) LoadWithMarkup(_ string, l partner.LoadListener) {
	a.deliverLoad(l)
}

// deliverLoad fires the load outcome on a partner-owned goroutine after
// the configured latency
func (a *ad) deliverLoad(l partner.LoadListener) {
	cfg := a.sdk.cfg
	if cfg.DropLoadCallbacks {
		return
	}

	go func() {
		if cfg.Latency > 0 {
			time.Sleep(cfg.Latency)
		}

		if rand.Float64() < cfg.FillRate {
			a.mu.Lock()
			a.loaded = true
			a.mu.Unlock()
			l.OnLoaded()
			if cfg.DuplicateTerminals {
				l.OnLoaded()
			}
			return
		}

		l.OnLoadFailed("sim: no fill for unit " + a.unitID)
		if cfg.DuplicateTerminals {
			l.OnLoadFailed("sim: no fill for unit " + a.unitID)
		}
	}()
}

func (a *ad) Ready() bool {
	if a.sdk.cfg.NeverReady {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loaded
}

func (a *ad) Show(l partner.ShowListener) {
	cfg := a.sdk.cfg

	go func() {
		if cfg.Latency > 0 {
			time.Sleep(cfg.Latency)
		}

		l.OnImpression()
		l.OnShown()
		if cfg.DuplicateTerminals {
			l.OnShown()
		}
		if a.rewarded {
			l.OnReward("coins", 10)
		}
		l.OnDismissed()
	}()
}

func (a *ad) Release() {
	a.mu.Lock()
	a.loaded = false
	a.mu.Unlock()
}
