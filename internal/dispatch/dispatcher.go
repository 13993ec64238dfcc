// Package dispatch routes ad requests to the correct partner API surface
// and owns the live-handle registry.
package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/admeshlabs/mediation-bridge/internal/handle"
	"github.com/admeshlabs/mediation-bridge/internal/mediation"
	"github.com/admeshlabs/mediation-bridge/internal/metrics"
	"github.com/admeshlabs/mediation-bridge/internal/partner"
	"github.com/admeshlabs/mediation-bridge/internal/size"
	"github.com/admeshlabs/mediation-bridge/pkg/logger"
)

// Route identifies one of the six partner API surfaces a request can be
// driven through
type Route string

const (
	RouteBannerDirect       Route = "banner-direct"
	RouteBannerMarkup       Route = "banner-markup"
	RouteInterstitialDirect Route = "interstitial-direct"
	RouteInterstitialBid    Route = "interstitial-bid"
	RouteRewardedDirect     Route = "rewarded-direct"
	RouteRewardedBid        Route = "rewarded-bid"
)

// RouteFor selects the partner API surface for a request. Banner shares
// one handle type either way; interstitial and rewarded split into
// distinct handle types for bid vs non-bid.
func RouteFor(req mediation.Request) (Route, error) {
	switch req.Format {
	case mediation.FormatBanner:
		if req.HasMarkup() {
			return RouteBannerMarkup, nil
		}
		return RouteBannerDirect, nil
	case mediation.FormatInterstitial:
		if req.HasMarkup() {
			return RouteInterstitialBid, nil
		}
		return RouteInterstitialDirect, nil
	case mediation.FormatRewarded:
		if req.HasMarkup() {
			return RouteRewardedBid, nil
		}
		return RouteRewardedDirect, nil
	}
	return "", mediation.NewUnsupportedFormatError(req.Format)
}

// Dispatcher translates host load/show/invalidate calls into partner SDK
// calls. One Dispatcher serves a single partner SDK instance.
type Dispatcher struct {
	sdk      partner.SDK
	side     mediation.Listener
	metrics  *metrics.Metrics
	registry *Registry
}

// New creates a dispatcher. The side listener receives every
// impression/click/reward/dismissal the partner reports; m may be nil to
// disable metrics.
func New(sdk partner.SDK, side mediation.Listener, m *metrics.Metrics) *Dispatcher {
	if side == nil {
		side = mediation.NopListener{}
	}
	if m != nil {
		side = &observedListener{next: side, metrics: m}
	}
	return &Dispatcher{
		sdk:      sdk,
		side:     side,
		metrics:  m,
		registry: NewRegistry(),
	}
}

// Registry exposes the live-handle registry, mainly for introspection
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Setup performs the one-time partner SDK initialization from the host
// credential map. A repeated call after success is a no-op.
func (d *Dispatcher) Setup(credentials map[string]string) error {
	if d.sdk.Initialized() {
		return nil
	}

	appID := credentials[mediation.CredentialAppID]
	appKey := credentials[mediation.CredentialAppKey]
	if appID == "" || appKey == "" {
		d.recordSetup("precondition")
		return mediation.NewPreconditionError("missing app_id or app_key credential")
	}

	if err := d.sdk.Init(map[string]string{
		mediation.CredentialAppID:  appID,
		mediation.CredentialAppKey: appKey,
	}); err != nil {
		d.recordSetup("error")
		return mediation.NewSetupFailedError(err)
	}

	d.recordSetup("ok")
	lg := logger.Partner()
	lg.Info().Msg("partner SDK initialized")
	return nil
}

// Load routes one ad request, issues the partner load, and suspends until
// it resolves. On success the returned handle is registered and stays
// live until invalidated.
func (d *Dispatcher) Load(ctx context.Context, req mediation.Request) (*handle.Handle, error) {
	route, err := RouteFor(req)
	if err != nil {
		d.recordLoad(req.Format, "", "unsupported", 0)
		return nil, err
	}

	if req.PlacementID == "" {
		d.recordLoad(req.Format, route, "precondition", 0)
		return nil, mediation.NewPreconditionError("empty placement id")
	}
	if req.UnitID == "" {
		d.recordLoad(req.Format, route, "precondition", 0)
		return nil, mediation.NewPreconditionError("empty unit id")
	}
	if !d.sdk.Initialized() {
		d.recordLoad(req.Format, route, "not_initialized", 0)
		return nil, mediation.NewNotInitializedError()
	}

	h, err := d.buildHandle(route, req)
	if err != nil {
		d.recordLoad(req.Format, route, "construct_error", 0)
		return nil, err
	}

	log := logger.Dispatch(req.PlacementID)
	log.Debug().
		Str("handle_id", h.ID()).
		Str("route", string(route)).
		Msg("dispatching load")

	start := time.Now()
	err = h.Load(ctx)
	elapsed := time.Since(start)
	d.observeAbsorbed(h)

	if err != nil {
		d.recordLoad(req.Format, route, loadStatus(err), elapsed)
		log.Debug().Err(err).Str("handle_id", h.ID()).Msg("load failed")
		return nil, err
	}

	d.registry.Add(h)
	if d.metrics != nil {
		d.metrics.ActiveHandles.Set(float64(d.registry.Len()))
	}
	d.recordLoad(req.Format, route, "ok", elapsed)
	log.Debug().Str("handle_id", h.ID()).Dur("elapsed", elapsed).Msg("load resolved")
	return h, nil
}

// Show presents a previously loaded handle
func (d *Dispatcher) Show(ctx context.Context, handleID string) error {
	h, ok := d.registry.Get(handleID)
	if !ok {
		return mediation.NewNotFoundError(handleID)
	}

	start := time.Now()
	err := h.Show(ctx)
	elapsed := time.Since(start)
	d.observeAbsorbed(h)

	status := "ok"
	if err != nil {
		status = loadStatus(err)
	}
	if d.metrics != nil {
		d.metrics.RecordShow(string(h.Request().Format), status, elapsed)
		if status == "cancelled" {
			d.metrics.IncAbandonedAwait()
		}
	}
	return err
}

// Invalidate releases a handle and drops it from the registry. An absent
// or already-released handle id is a not-found error.
func (d *Dispatcher) Invalidate(handleID string) error {
	h, ok := d.registry.Remove(handleID)
	if !ok {
		return mediation.NewNotFoundError(handleID)
	}
	if d.metrics != nil {
		d.metrics.ActiveHandles.Set(float64(d.registry.Len()))
	}
	return h.Invalidate()
}

// buildHandle constructs the partner ad object for the selected route
func (d *Dispatcher) buildHandle(route Route, req mediation.Request) (*handle.Handle, error) {
	id := newHandleID()

	switch route {
	case RouteBannerDirect, RouteBannerMarkup:
		b, err := d.sdk.NewBanner(req.UnitID, size.Negotiate(req.Height))
		if err != nil {
			return nil, mediation.NewLoadError(err.Error())
		}
		return handle.NewBanner(id, req, b, d.side), nil

	case RouteInterstitialDirect:
		fs, err := d.sdk.NewInterstitial(req.UnitID)
		if err != nil {
			return nil, mediation.NewLoadError(err.Error())
		}
		return handle.NewDirectFullscreen(id, req, fs, d.side), nil

	case RouteInterstitialBid:
		fs, err := d.sdk.NewInterstitialBid(req.UnitID)
		if err != nil {
			return nil, mediation.NewLoadError(err.Error())
		}
		return handle.NewBidFullscreen(id, req, fs, d.side), nil

	case RouteRewardedDirect:
		fs, err := d.sdk.NewRewarded(req.UnitID)
		if err != nil {
			return nil, mediation.NewLoadError(err.Error())
		}
		return handle.NewDirectFullscreen(id, req, fs, d.side), nil

	default: // RouteRewardedBid
		fs, err := d.sdk.NewRewardedBid(req.UnitID)
		if err != nil {
			return nil, mediation.NewLoadError(err.Error())
		}
		return handle.NewBidFullscreen(id, req, fs, d.side), nil
	}
}

func (d *Dispatcher) recordSetup(status string) {
	if d.metrics != nil {
		d.metrics.RecordSetup(status)
	}
}

func (d *Dispatcher) recordLoad(format mediation.Format, route Route, status string, elapsed time.Duration) {
	if d.metrics != nil {
		d.metrics.RecordLoad(string(format), string(route), status, elapsed)
		if status == "cancelled" {
			d.metrics.IncAbandonedAwait()
		}
	}
}

// observeAbsorbed folds duplicate-terminal counts accumulated since the
// last observation into the process counter
func (d *Dispatcher) observeAbsorbed(h *handle.Handle) {
	if d.metrics == nil {
		return
	}
	d.metrics.AddAbsorbedTerminals(h.DrainAbsorbed())
}

// loadStatus maps an error to a metrics status label
func loadStatus(err error) string {
	switch mediation.CodeOf(err) {
	case mediation.ErrorCodeCancelled:
		return "cancelled"
	case "":
		return "error"
	default:
		return "failed"
	}
}

// newHandleID generates an opaque handle identifier
func newHandleID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "handle-fallback"
	}
	return hex.EncodeToString(b)
}

// observedListener decorates the host listener with side-event metrics
type observedListener struct {
	next    mediation.Listener
	metrics *metrics.Metrics
}

func (o *observedListener) OnImpression(ev mediation.SideEvent) {
	o.metrics.RecordSideEvent("impression", string(ev.Format))
	o.next.OnImpression(ev)
}

func (o *observedListener) OnClick(ev mediation.SideEvent) {
	o.metrics.RecordSideEvent("click", string(ev.Format))
	o.next.OnClick(ev)
}

func (o *observedListener) OnReward(ev mediation.RewardEvent) {
	o.metrics.RecordSideEvent("reward", string(ev.Format))
	o.next.OnReward(ev)
}

func (o *observedListener) OnDismiss(ev mediation.SideEvent) {
	o.metrics.RecordSideEvent("dismiss", string(ev.Format))
	o.next.OnDismiss(ev)
}
