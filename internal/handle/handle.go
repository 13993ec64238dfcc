// Package handle owns the per-ad lifecycle: a closed set of partner ad
// object variants, the state machine each one moves through, and the
// relays that translate partner callbacks into slot resolutions and
// side-channel notifications.
package handle

import (
	"context"
	"sync"
	"time"

	"github.com/admeshlabs/mediation-bridge/internal/bridge"
	"github.com/admeshlabs/mediation-bridge/internal/mediation"
	"github.com/admeshlabs/mediation-bridge/internal/partner"
	"github.com/admeshlabs/mediation-bridge/pkg/logger"
)

// Variant identifies which concrete partner ad object backs a handle
type Variant string

const (
	VariantBanner             Variant = "banner"
	VariantInterstitialDirect Variant = "interstitial-direct"
	VariantInterstitialBid    Variant = "interstitial-bid"
	VariantRewardedDirect     Variant = "rewarded-direct"
	VariantRewardedBid        Variant = "rewarded-bid"
)

// State is the position of a handle in its lifecycle
type State string

const (
	StateCreated     State = "created"
	StateLoading     State = "loading"
	StateLoaded      State = "loaded"
	StateLoadFailed  State = "load_failed"
	StateShowing     State = "showing"
	StateShown       State = "shown"
	StateShowFailed  State = "show_failed"
	StateDismissed   State = "dismissed"
	StateInvalidated State = "invalidated"
)

// Handle wraps one partner ad object for its lifetime. It is exclusively
// owned by the adapter layer and never shared across concurrent load
// attempts. Exactly one of banner/direct/bid is non-nil, matching the
// variant.
type Handle struct {
	id      string
	variant Variant
	req     mediation.Request
	side    mediation.Listener

	banner partner.Banner
	direct partner.DirectFullscreen
	bid    partner.BidFullscreen

	mu           sync.Mutex
	state        State
	loadIssued   bool
	loadSlot     *bridge.Slot
	showSlot     *bridge.Slot
	absorbedSeen int
}

// NewBanner wraps a partner banner object
func NewBanner(id string, req mediation.Request, b partner.Banner, side mediation.Listener) *Handle {
	return newHandle(id, VariantBanner, req, side, func(h *Handle) { h.banner = b })
}

// NewDirectFullscreen wraps a direct (non-bid) interstitial or rewarded object
func NewDirectFullscreen(id string, req mediation.Request, fs partner.DirectFullscreen, side mediation.Listener) *Handle {
	v := VariantInterstitialDirect
	if req.Format == mediation.FormatRewarded {
		v = VariantRewardedDirect
	}
	return newHandle(id, v, req, side, func(h *Handle) { h.direct = fs })
}

// NewBidFullscreen wraps a bid-enabled interstitial or rewarded object
func NewBidFullscreen(id string, req mediation.Request, fs partner.BidFullscreen, side mediation.Listener) *Handle {
	v := VariantInterstitialBid
	if req.Format == mediation.FormatRewarded {
		v = VariantRewardedBid
	}
	return newHandle(id, v, req, side, func(h *Handle) { h.bid = fs })
}

func newHandle(id string, v Variant, req mediation.Request, side mediation.Listener, bind func(*Handle)) *Handle {
	if side == nil {
		side = mediation.NopListener{}
	}
	h := &Handle{
		id:      id,
		variant: v,
		req:     req,
		side:    side,
		state:   StateCreated,
	}
	bind(h)
	return h
}

// ID returns the adapter-assigned handle identifier
func (h *Handle) ID() string { return h.id }

// Variant returns the concrete partner object variant
func (h *Handle) Variant() Variant { return h.variant }

// Request returns the originating ad request
func (h *Handle) Request() mediation.Request { return h.req }

// State returns the current lifecycle state
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// AbsorbedTerminals returns how many duplicate or late terminal callbacks
// this handle has silently dropped across its load and show slots
func (h *Handle) AbsorbedTerminals() int {
	h.mu.Lock()
	load, show := h.loadSlot, h.showSlot
	h.mu.Unlock()

	n := 0
	if load != nil {
		n += load.Absorbed()
	}
	if show != nil {
		n += show.Absorbed()
	}
	return n
}

// DrainAbsorbed returns the absorbed-terminal count accumulated since
// the previous DrainAbsorbed call. Used to feed a monotonic process
// counter without double counting across load and show observations.
func (h *Handle) DrainAbsorbed() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	if h.loadSlot != nil {
		total += h.loadSlot.Absorbed()
	}
	if h.showSlot != nil {
		total += h.showSlot.Absorbed()
	}
	delta := total - h.absorbedSeen
	h.absorbedSeen = total
	return delta
}

// Load issues the single load call this handle ever makes and suspends
// until the partner delivers a terminal outcome or ctx is done.
func (h *Handle) Load(ctx context.Context) error {
	h.mu.Lock()
	if h.loadIssued {
		h.mu.Unlock()
		return mediation.NewPreconditionError("load already issued for this handle")
	}
	h.loadIssued = true
	h.state = StateLoading
	slot := bridge.NewSlot()
	h.loadSlot = slot
	h.mu.Unlock()

	if h.req.Muted {
		h.setMuted(true)
	}

	relay := &loadRelay{h: h, slot: slot}
	switch {
	case h.banner != nil && h.req.HasMarkup():
		h.banner.LoadWithMarkup(h.req.Markup, relay)
	case h.banner != nil:
		h.banner.Load(relay)
	case h.direct != nil:
		h.direct.Load(relay)
	default:
		h.bid.LoadWithMarkup(h.req.Markup, relay)
	}

	return slot.Await(ctx)
}

// Show presents a loaded ad and suspends until the partner confirms or
// rejects it. Banners confirm synchronously; fullscreen variants either
// fail immediately on a synchronous not-ready signal or resolve on the
// first terminal show callback.
func (h *Handle) Show(ctx context.Context) error {
	h.mu.Lock()
	if h.state != StateLoaded {
		state := h.state
		h.mu.Unlock()
		return mediation.NewPreconditionError("ad not in loaded state: " + string(state))
	}
	h.state = StateShowing
	slot := bridge.NewSlot()
	h.showSlot = slot
	h.mu.Unlock()

	relay := &showRelay{h: h, slot: slot}

	if h.banner != nil {
		// Banners have no asynchronous show confirmation; attaching the
		// view is the whole operation.
		h.banner.Show(relay)
		if slot.Resolve(nil) {
			h.forceState(StateShown)
		}
		return slot.Await(ctx)
	}

	fs := h.fullscreen()
	if !fs.Ready() {
		// No asynchronous callback will ever fire for a not-ready ad;
		// synthesize the failure here instead of waiting forever.
		err := mediation.NewShowError("ad not ready")
		if slot.Resolve(err) {
			h.forceState(StateShowFailed)
		}
		return slot.Await(ctx)
	}

	fs.Show(relay)
	return slot.Await(ctx)
}

// Invalidate releases the handle. Banners dispose their visual resource;
// fullscreen variants have no partner release call and are simply
// abandoned.
func (h *Handle) Invalidate() error {
	h.mu.Lock()
	if h.state == StateInvalidated {
		h.mu.Unlock()
		return mediation.NewNotFoundError(h.id)
	}
	h.state = StateInvalidated
	h.mu.Unlock()

	if h.banner != nil {
		h.banner.Release()
	}
	return nil
}

// fullscreen returns the fullscreen surface regardless of bid mode
func (h *Handle) fullscreen() partner.Fullscreen {
	if h.direct != nil {
		return h.direct
	}
	return h.bid
}

func (h *Handle) setMuted(muted bool) {
	switch {
	case h.banner != nil:
		h.banner.SetMuted(muted)
	case h.direct != nil:
		h.direct.SetMuted(muted)
	default:
		h.bid.SetMuted(muted)
	}
}

// forceState records the state decided by a winning slot resolution
func (h *Handle) forceState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// transition moves from an expected state, ignoring the call otherwise.
// Duplicate partner callbacks make illegal transitions routine, so a
// failed transition is a no-op, not an error.
func (h *Handle) transition(from, to State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != from {
		return false
	}
	h.state = to
	return true
}

func (h *Handle) sideEvent() mediation.SideEvent {
	return mediation.SideEvent{
		HandleID:    h.id,
		PlacementID: h.req.PlacementID,
		Format:      h.req.Format,
		At:          time.Now(),
	}
}

// loadRelay adapts partner load callbacks to the load slot. The slot is
// the arbiter: only the winning resolution is allowed to set the state,
// so a duplicate or conflicting firing changes nothing.
type loadRelay struct {
	h    *Handle
	slot *bridge.Slot
}

func (r *loadRelay) OnLoaded() {
	if r.slot.Resolve(nil) {
		r.h.forceState(StateLoaded)
		return
	}
	lg := logger.Bridge()
	lg.Debug().
		Str("handle_id", r.h.id).
		Msg("duplicate load success absorbed")
}

func (r *loadRelay) OnLoadFailed(reason string) {
	if r.slot.Resolve(mediation.NewLoadError(reason)) {
		r.h.forceState(StateLoadFailed)
		return
	}
	lg := logger.Bridge()
	lg.Debug().
		Str("handle_id", r.h.id).
		Str("reason", reason).
		Msg("duplicate load failure absorbed")
}

// showRelay adapts partner show callbacks. Terminal events go through
// the show slot; side-channel events bypass it entirely and are forwarded
// to the listener no matter what state the handle or slot is in.
type showRelay struct {
	h    *Handle
	slot *bridge.Slot
}

func (r *showRelay) OnShown() {
	if r.slot.Resolve(nil) {
		r.h.forceState(StateShown)
	}
}

func (r *showRelay) OnShowFailed(reason string) {
	if r.slot.Resolve(mediation.NewShowError(reason)) {
		r.h.forceState(StateShowFailed)
	}
}

func (r *showRelay) OnImpression() {
	r.h.side.OnImpression(r.h.sideEvent())
}

func (r *showRelay) OnClick() {
	r.h.side.OnClick(r.h.sideEvent())
}

func (r *showRelay) OnReward(label string, amount float64) {
	r.h.side.OnReward(mediation.RewardEvent{
		SideEvent: r.h.sideEvent(),
		Label:     label,
		Amount:    amount,
	})
}

func (r *showRelay) OnDismissed() {
	r.h.side.OnDismiss(r.h.sideEvent())
	r.h.transition(StateShown, StateDismissed)
}
