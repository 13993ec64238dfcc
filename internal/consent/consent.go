// Package consent maps host-side privacy signals onto partner SDK
// setter calls. It is stateless pass-through: nothing is stored, and a
// signal absent from the host map results in no partner call at all.
package consent

import (
	"strings"

	"github.com/admeshlabs/mediation-bridge/internal/mediation"
	"github.com/admeshlabs/mediation-bridge/internal/metrics"
	"github.com/admeshlabs/mediation-bridge/internal/partner"
	"github.com/admeshlabs/mediation-bridge/pkg/logger"
)

// Signals are the host consent inputs. Pointer fields distinguish "not
// provided" from an explicit false.
type Signals struct {
	// GDPRApplies reports whether GDPR is in scope for this user
	GDPRApplies *bool
	// GDPRConsent is the IAB TCF consent string
	GDPRConsent string
	// USPrivacy is the IAB US privacy (CCPA) string
	USPrivacy string
	// COPPA flags child-directed treatment
	COPPA *bool
	// DoNotTrack is the host do-not-track flag
	DoNotTrack *bool
}

// ParseSignals extracts consent signals from the host key/value map
// using the fixed mediation keys
func ParseSignals(values map[string]string) Signals {
	s := Signals{
		GDPRConsent: values[mediation.ConsentKeyGDPRConsent],
		USPrivacy:   values[mediation.ConsentKeyUSPrivacy],
	}
	if v, ok := values[mediation.ConsentKeyGDPRApplies]; ok {
		b := parseBool(v)
		s.GDPRApplies = &b
	}
	if v, ok := values[mediation.ConsentKeyCOPPA]; ok {
		b := parseBool(v)
		s.COPPA = &b
	}
	if v, ok := values[mediation.ConsentKeyDoNotTrack]; ok {
		b := parseBool(v)
		s.DoNotTrack = &b
	}
	return s
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

// Propagate pushes present signals onto the partner SDK. m may be nil.
func Propagate(sdk partner.SDK, s Signals, m *metrics.Metrics) {
	log := logger.Partner()

	if s.GDPRApplies != nil || s.GDPRConsent != "" {
		applies := s.GDPRApplies != nil && *s.GDPRApplies
		sdk.SetGDPRConsent(s.GDPRConsent, applies)
		if m != nil {
			m.RecordConsentSignal("gdpr", s.GDPRConsent != "")
		}
		log.Debug().Bool("applies", applies).Msg("GDPR consent propagated")
	}

	if s.USPrivacy != "" {
		sdk.SetUSPrivacy(s.USPrivacy)
		if m != nil {
			m.RecordConsentSignal("us_privacy", true)
		}
		log.Debug().Msg("US privacy string propagated")
	}

	if s.COPPA != nil {
		sdk.SetCOPPA(*s.COPPA)
		if m != nil {
			m.RecordConsentSignal("coppa", *s.COPPA)
		}
		log.Debug().Bool("child_directed", *s.COPPA).Msg("COPPA flag propagated")
	}

	if s.DoNotTrack != nil {
		sdk.SetDoNotTrack(*s.DoNotTrack)
		if m != nil {
			m.RecordConsentSignal("dnt", *s.DoNotTrack)
		}
		log.Debug().Bool("dnt", *s.DoNotTrack).Msg("do-not-track flag propagated")
	}
}
