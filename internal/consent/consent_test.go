package consent

import (
	"testing"

	"github.com/admeshlabs/mediation-bridge/internal/partner"
)

// setterSpy records which partner consent setters were invoked
type setterSpy struct {
	gdprCalls   int
	gdprConsent string
	gdprApplies bool
	uspCalls    int
	uspString   string
	coppaCalls  int
	coppaValue  bool
	dntCalls    int
	dntValue    bool
}

func (s *setterSpy) Init(map[string]string) error { return nil }
func (s *setterSpy) Initialized() bool            { return true }

func (s *setterSpy) SetGDPRConsent(consent string, applies bool) {
	s.gdprCalls++
	s.gdprConsent = consent
	s.gdprApplies = applies
}

func (s *setterSpy) SetUSPrivacy(v string) {
	s.uspCalls++
	s.uspString = v
}

func (s *setterSpy) SetCOPPA(v bool) {
	s.coppaCalls++
	s.coppaValue = v
}

func (s *setterSpy) SetDoNotTrack(v bool) {
	s.dntCalls++
	s.dntValue = v
}

func (s *setterSpy) NewBanner(string, partner.Size) (partner.Banner, error) { return nil, nil }
func (s *setterSpy) NewInterstitial(string) (partner.DirectFullscreen, error) {
	return nil, nil
}
func (s *setterSpy) NewInterstitialBid(string) (partner.BidFullscreen, error) {
	return nil, nil
}
func (s *setterSpy) NewRewarded(string) (partner.DirectFullscreen, error) {
	return nil, nil
}
func (s *setterSpy) NewRewardedBid(string) (partner.BidFullscreen, error) {
	return nil, nil
}

func boolPtr(v bool) *bool { return &v }

func TestPropagate(t *testing.T) {
	tests := []struct {
		name    string
		signals Signals
		verify  func(t *testing.T, spy *setterSpy)
	}{
		{
			name:    "no signals means no partner calls",
			signals: Signals{},
			verify: func(t *testing.T, spy *setterSpy) {
				if spy.gdprCalls+spy.uspCalls+spy.coppaCalls+spy.dntCalls != 0 {
					t.Errorf("expected zero setter calls, got %+v", spy)
				}
			},
		},
		{
			name:    "gdpr applies with consent string",
			signals: Signals{GDPRApplies: boolPtr(true), GDPRConsent: "CPc9aA9Pc9aA9"},
			verify: func(t *testing.T, spy *setterSpy) {
				if spy.gdprCalls != 1 || !spy.gdprApplies || spy.gdprConsent != "CPc9aA9Pc9aA9" {
					t.Errorf("unexpected gdpr propagation: %+v", spy)
				}
			},
		},
		{
			name:    "consent string without applies flag",
			signals: Signals{GDPRConsent: "CPc9aA9"},
			verify: func(t *testing.T, spy *setterSpy) {
				if spy.gdprCalls != 1 || spy.gdprApplies {
					t.Errorf("expected gdpr call with applies=false, got %+v", spy)
				}
			},
		},
		{
			name:    "ccpa opt-out string",
			signals: Signals{USPrivacy: "1YNN"},
			verify: func(t *testing.T, spy *setterSpy) {
				if spy.uspCalls != 1 || spy.uspString != "1YNN" {
					t.Errorf("unexpected us privacy propagation: %+v", spy)
				}
			},
		},
		{
			name:    "explicit coppa false still propagated",
			signals: Signals{COPPA: boolPtr(false)},
			verify: func(t *testing.T, spy *setterSpy) {
				if spy.coppaCalls != 1 || spy.coppaValue {
					t.Errorf("expected coppa=false call, got %+v", spy)
				}
			},
		},
		{
			name:    "do-not-track on",
			signals: Signals{DoNotTrack: boolPtr(true)},
			verify: func(t *testing.T, spy *setterSpy) {
				if spy.dntCalls != 1 || !spy.dntValue {
					t.Errorf("expected dnt=true call, got %+v", spy)
				}
			},
		},
		{
			name: "all signals together",
			signals: Signals{
				GDPRApplies: boolPtr(true),
				GDPRConsent: "CPc",
				USPrivacy:   "1---",
				COPPA:       boolPtr(true),
				DoNotTrack:  boolPtr(false),
			},
			verify: func(t *testing.T, spy *setterSpy) {
				if spy.gdprCalls != 1 || spy.uspCalls != 1 || spy.coppaCalls != 1 || spy.dntCalls != 1 {
					t.Errorf("expected each setter once, got %+v", spy)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spy := &setterSpy{}
			Propagate(spy, tt.signals, nil)
			tt.verify(t, spy)
		})
	}
}

func TestParseSignals(t *testing.T) {
	t.Run("full map", func(t *testing.T) {
		s := ParseSignals(map[string]string{
			"gdpr_applies": "1",
			"gdpr_consent": "CPc9",
			"us_privacy":   "1YNN",
			"coppa":        "true",
			"dnt":          "false",
		})

		if s.GDPRApplies == nil || !*s.GDPRApplies {
			t.Error("expected gdpr_applies=true")
		}
		if s.GDPRConsent != "CPc9" {
			t.Errorf("expected consent string, got %q", s.GDPRConsent)
		}
		if s.USPrivacy != "1YNN" {
			t.Errorf("expected us_privacy, got %q", s.USPrivacy)
		}
		if s.COPPA == nil || !*s.COPPA {
			t.Error("expected coppa=true")
		}
		if s.DoNotTrack == nil || *s.DoNotTrack {
			t.Error("expected dnt=false")
		}
	})

	t.Run("empty map leaves signals absent", func(t *testing.T) {
		s := ParseSignals(map[string]string{})
		if s.GDPRApplies != nil || s.COPPA != nil || s.DoNotTrack != nil {
			t.Errorf("expected absent signals, got %+v", s)
		}
		if s.GDPRConsent != "" || s.USPrivacy != "" {
			t.Error("expected empty strings")
		}
	})
}
