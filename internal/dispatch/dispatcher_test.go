package dispatch

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/admeshlabs/mediation-bridge/internal/mediation"
	"github.com/admeshlabs/mediation-bridge/internal/metrics"
	"github.com/admeshlabs/mediation-bridge/internal/partner"
	"github.com/admeshlabs/mediation-bridge/internal/size"
)

// scriptedAd is a partner ad object whose load/show behavior is set per
// test. By default it loads and shows successfully, firing callbacks
// synchronously.
type scriptedAd struct {
	mu         sync.Mutex
	loadFail   string // non-empty means load fails with this reason
	notReady   bool
	showFail   string
	loadCalls  int
	markupArgs []string
	showCalls  int
	released   int
}

func (a *scriptedAd) SetMuted(bool) {}

func (a *scriptedAd) Load(l partner.LoadListener) {
	a.mu.Lock()
	a.loadCalls++
	fail := a.loadFail
	a.mu.Unlock()
	if fail != "" {
		l.OnLoadFailed(fail)
		return
	}
	l.OnLoaded()
}

func (a *scriptedAd) LoadWithMarkup(markup string, l partner.LoadListener) {
	a.mu.Lock()
	a.markupArgs = append(a.markupArgs, markup)
	fail := a.loadFail
	a.mu.Unlock()
	if fail != "" {
		l.OnLoadFailed(fail)
		return
	}
	l.OnLoaded()
}

func (a *scriptedAd) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.notReady
}

func (a *scriptedAd) Show(l partner.ShowListener) {
	a.mu.Lock()
	a.showCalls++
	fail := a.showFail
	a.mu.Unlock()
	if fail != "" {
		l.OnShowFailed(fail)
		return
	}
	l.OnShown()
}

func (a *scriptedAd) Release() {
	a.mu.Lock()
	a.released++
	a.mu.Unlock()
}

// spySDK records every partner call made through it
type spySDK struct {
	mu sync.Mutex

	initialized bool
	initCalls   int
	initErr     error
	lastConfig  map[string]string

	bannerCalls      int
	interCalls       int
	interBidCalls    int
	rewardedCalls    int
	rewardedBidCalls int
	lastSize         partner.Size

	nextAd *scriptedAd
}

func newSpySDK() *spySDK {
	return &spySDK{initialized: true, nextAd: &scriptedAd{}}
}

func (s *spySDK) Init(cfg map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initCalls++
	s.lastConfig = cfg
	if s.initErr != nil {
		return s.initErr
	}
	s.initialized = true
	return nil
}

func (s *spySDK) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *spySDK) SetGDPRConsent(string, bool) {}
func (s *spySDK) SetUSPrivacy(string)         {}
func (s *spySDK) SetCOPPA(bool)               {}
func (s *spySDK) SetDoNotTrack(bool)          {}

func (s *spySDK) ad() *scriptedAd {
	if s.nextAd == nil {
		s.nextAd = &scriptedAd{}
	}
	return s.nextAd
}

func (s *spySDK) NewBanner(unitID string, sz partner.Size) (partner.Banner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bannerCalls++
	s.lastSize = sz
	return s.ad(), nil
}

func (s *spySDK) NewInterstitial(string) (partner.DirectFullscreen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interCalls++
	return s.ad(), nil
}

func (s *spySDK) NewInterstitialBid(string) (partner.BidFullscreen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interBidCalls++
	return s.ad(), nil
}

func (s *spySDK) NewRewarded(string) (partner.DirectFullscreen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewardedCalls++
	return s.ad(), nil
}

func (s *spySDK) NewRewardedBid(string) (partner.BidFullscreen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewardedBidCalls++
	return s.ad(), nil
}

func (s *spySDK) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bannerCalls + s.interCalls + s.interBidCalls + s.rewardedCalls + s.rewardedBidCalls
}

func request(format mediation.Format, markup string) mediation.Request {
	return mediation.Request{
		Format:      format,
		PlacementID: "p1",
		UnitID:      "u1",
		Markup:      markup,
	}
}

func TestRouteFor(t *testing.T) {
	tests := []struct {
		name   string
		format mediation.Format
		markup string
		want   Route
	}{
		{"banner direct", mediation.FormatBanner, "", RouteBannerDirect},
		{"banner markup", mediation.FormatBanner, "adm", RouteBannerMarkup},
		{"interstitial direct", mediation.FormatInterstitial, "", RouteInterstitialDirect},
		{"interstitial bid", mediation.FormatInterstitial, "adm", RouteInterstitialBid},
		{"rewarded direct", mediation.FormatRewarded, "", RouteRewardedDirect},
		{"rewarded bid", mediation.FormatRewarded, "adm", RouteRewardedBid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RouteFor(request(tt.format, tt.markup))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected route %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("unrecognized format", func(t *testing.T) {
		_, err := RouteFor(request("native", ""))
		if mediation.CodeOf(err) != mediation.ErrorCodeUnsupportedFormat {
			t.Fatalf("expected UNSUPPORTED_FORMAT, got %v", err)
		}
	})
}

func TestLoad_SixRoutesHitDistinctConstructors(t *testing.T) {
	tests := []struct {
		name   string
		format mediation.Format
		markup string
		calls  func(s *spySDK) int
	}{
		{"banner direct", mediation.FormatBanner, "", func(s *spySDK) int { return s.bannerCalls }},
		{"banner markup", mediation.FormatBanner, "adm", func(s *spySDK) int { return s.bannerCalls }},
		{"interstitial direct", mediation.FormatInterstitial, "", func(s *spySDK) int { return s.interCalls }},
		{"interstitial bid", mediation.FormatInterstitial, "adm", func(s *spySDK) int { return s.interBidCalls }},
		{"rewarded direct", mediation.FormatRewarded, "", func(s *spySDK) int { return s.rewardedCalls }},
		{"rewarded bid", mediation.FormatRewarded, "adm", func(s *spySDK) int { return s.rewardedBidCalls }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sdk := newSpySDK()
			d := New(sdk, nil, nil)

			h, err := d.Load(context.Background(), request(tt.format, tt.markup))
			if err != nil {
				t.Fatalf("unexpected load error: %v", err)
			}
			if h == nil {
				t.Fatal("expected a handle")
			}
			if got := tt.calls(sdk); got != 1 {
				t.Errorf("expected 1 constructor call on the selected route, got %d", got)
			}
			if sdk.totalCalls() != 1 {
				t.Errorf("expected no calls on other routes, total=%d", sdk.totalCalls())
			}
		})
	}
}

func TestLoad_BannerMarkupUsesMarkupCall(t *testing.T) {
	sdk := newSpySDK()
	d := New(sdk, nil, nil)

	_, err := d.Load(context.Background(), request(mediation.FormatBanner, "won-adm"))
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	ad := sdk.nextAd
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.loadCalls != 0 || len(ad.markupArgs) != 1 || ad.markupArgs[0] != "won-adm" {
		t.Errorf("expected a single markup load, got direct=%d markup=%v", ad.loadCalls, ad.markupArgs)
	}
}

func TestLoad_PreconditionsBeforeAnyPartnerCall(t *testing.T) {
	tests := []struct {
		name string
		req  mediation.Request
		sdk  func() *spySDK
		code mediation.ErrorCode
	}{
		{
			name: "unsupported format",
			req:  request("native", ""),
			sdk:  newSpySDK,
			code: mediation.ErrorCodeUnsupportedFormat,
		},
		{
			name: "empty placement id",
			req:  mediation.Request{Format: mediation.FormatBanner, UnitID: "u1"},
			sdk:  newSpySDK,
			code: mediation.ErrorCodePrecondition,
		},
		{
			name: "empty unit id",
			req:  mediation.Request{Format: mediation.FormatBanner, PlacementID: "p1"},
			sdk:  newSpySDK,
			code: mediation.ErrorCodePrecondition,
		},
		{
			name: "sdk not initialized",
			req:  request(mediation.FormatBanner, ""),
			sdk: func() *spySDK {
				s := newSpySDK()
				s.initialized = false
				return s
			},
			code: mediation.ErrorCodeNotInitialized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sdk := tt.sdk()
			d := New(sdk, nil, nil)

			_, err := d.Load(context.Background(), tt.req)
			if mediation.CodeOf(err) != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if sdk.totalCalls() != 0 {
				t.Errorf("expected zero partner calls, got %d", sdk.totalCalls())
			}
		})
	}
}

func TestLoad_PreconditionFailuresAreCounted(t *testing.T) {
	m := metrics.NewMetrics("dispatchtest")

	tests := []struct {
		name   string
		req    mediation.Request
		sdk    func() *spySDK
		status string
	}{
		{
			name:   "empty placement id",
			req:    mediation.Request{Format: mediation.FormatBanner, UnitID: "u1"},
			sdk:    newSpySDK,
			status: "precondition",
		},
		{
			name:   "empty unit id",
			req:    mediation.Request{Format: mediation.FormatBanner, PlacementID: "p1"},
			sdk:    newSpySDK,
			status: "precondition",
		},
		{
			name: "sdk not initialized",
			req:  request(mediation.FormatBanner, ""),
			sdk: func() *spySDK {
				s := newSpySDK()
				s.initialized = false
				return s
			},
			status: "not_initialized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.sdk(), nil, m)

			counter := m.LoadsTotal.WithLabelValues(
				string(mediation.FormatBanner), string(RouteBannerDirect), tt.status)
			before := testutil.ToFloat64(counter)

			if _, err := d.Load(context.Background(), tt.req); err == nil {
				t.Fatal("expected load to fail")
			}

			if got := testutil.ToFloat64(counter); got != before+1 {
				t.Errorf("expected %s count %v, got %v", tt.status, before+1, got)
			}
		})
	}
}

func TestLoad_SizeNegotiationReachesPartner(t *testing.T) {
	sdk := newSpySDK()
	d := New(sdk, nil, nil)

	height := 120
	req := request(mediation.FormatBanner, "")
	req.Height = &height

	if _, err := d.Load(context.Background(), req); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if sdk.lastSize != size.Leaderboard {
		t.Errorf("expected leaderboard size at partner boundary, got %dx%d", sdk.lastSize.W, sdk.lastSize.H)
	}
}

func TestLoad_PartnerFailureDiscardsHandle(t *testing.T) {
	sdk := newSpySDK()
	sdk.nextAd = &scriptedAd{loadFail: "no fill"}
	d := New(sdk, nil, nil)

	_, err := d.Load(context.Background(), request(mediation.FormatRewarded, ""))
	if mediation.CodeOf(err) != mediation.ErrorCodeLoadFailed {
		t.Fatalf("expected LOAD_FAILED, got %v", err)
	}
	if d.Registry().Len() != 0 {
		t.Error("failed load must not register a handle")
	}
}

func TestSetup(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		sdk := newSpySDK()
		sdk.initialized = false
		d := New(sdk, nil, nil)

		err := d.Setup(map[string]string{mediation.CredentialAppID: "app"})
		if mediation.CodeOf(err) != mediation.ErrorCodePrecondition {
			t.Fatalf("expected PRECONDITION, got %v", err)
		}
		if sdk.initCalls != 0 {
			t.Error("expected no partner init call")
		}
	})

	t.Run("partner init failure", func(t *testing.T) {
		sdk := newSpySDK()
		sdk.initialized = false
		sdk.initErr = context.DeadlineExceeded
		d := New(sdk, nil, nil)

		err := d.Setup(map[string]string{
			mediation.CredentialAppID:  "app",
			mediation.CredentialAppKey: "key",
		})
		if mediation.CodeOf(err) != mediation.ErrorCodeSetupFailed {
			t.Fatalf("expected SETUP_FAILED, got %v", err)
		}
	})

	t.Run("success then repeat is a no-op", func(t *testing.T) {
		sdk := newSpySDK()
		sdk.initialized = false
		d := New(sdk, nil, nil)

		creds := map[string]string{
			mediation.CredentialAppID:  "app",
			mediation.CredentialAppKey: "key",
		}
		if err := d.Setup(creds); err != nil {
			t.Fatalf("unexpected setup error: %v", err)
		}
		if err := d.Setup(creds); err != nil {
			t.Fatalf("unexpected repeat setup error: %v", err)
		}
		if sdk.initCalls != 1 {
			t.Errorf("expected exactly 1 partner init call, got %d", sdk.initCalls)
		}
	})
}

func TestShow_UnknownHandle(t *testing.T) {
	d := New(newSpySDK(), nil, nil)
	err := d.Show(context.Background(), "missing")
	if mediation.CodeOf(err) != mediation.ErrorCodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestEndToEnd_BannerLifecycle(t *testing.T) {
	sdk := newSpySDK()
	d := New(sdk, nil, nil)

	h, err := d.Load(context.Background(), request(mediation.FormatBanner, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.Registry().Len() != 1 {
		t.Fatalf("expected 1 live handle, got %d", d.Registry().Len())
	}

	if err := d.Show(context.Background(), h.ID()); err != nil {
		t.Fatalf("show: %v", err)
	}

	if err := d.Invalidate(h.ID()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if sdk.nextAd.released != 1 {
		t.Errorf("expected banner resource released once, got %d", sdk.nextAd.released)
	}
	if d.Registry().Len() != 0 {
		t.Errorf("expected empty registry, got %d", d.Registry().Len())
	}

	err = d.Invalidate(h.ID())
	if mediation.CodeOf(err) != mediation.ErrorCodeNotFound {
		t.Fatalf("expected NOT_FOUND on second invalidate, got %v", err)
	}
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get("nope"); ok {
		t.Fatal("unexpected hit")
	}

	stats := r.Stats()
	if stats.GetMisses != 1 || stats.Live != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
