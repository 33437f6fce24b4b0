/*
leadscore.go - Lead score settings domain

PURPOSE:
  Controls the score at which a lead turns hot, the cadence on which
  accumulated scores reset, and the hot-lead multiplier. Registered under
  the "lead-score" slug.

RECOMPUTE:
  Score state is expensive to rebuild, so a recompute is scheduled only when
  the threshold or the reset period actually changed. The threshold is
  compared as a decimal, not as text: "10" and "10.0" are the same value and
  must not trigger a reset.
*/
package leadscore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/engagekit/policy-engine/policy"
)

const Slug = "lead-score"

// Reset periods accepted by Normalize.
const (
	ResetWeekly    = "weekly"
	ResetMonthly   = "monthly"
	ResetQuarterly = "quarterly"
	ResetNever     = "never"
)

func init() {
	policy.RegisterDomain(policy.Descriptor{
		Domain:         policy.DomainLeadScore,
		Slug:           Slug,
		Codec:          Codec{},
		NeedsRecompute: NeedsRecompute,
	})
}

// Payload is the lead score settings document stored on an override record.
type Payload struct {
	ScoreThreshold    decimal.Decimal `json:"score_threshold"`
	ResetPeriod       string          `json:"reset_period"`
	HotLeadMultiplier decimal.Decimal `json:"hot_lead_multiplier"`
}

type Codec struct{}

// Normalize validates and canonicalizes a raw lead score payload.
func (Codec) Normalize(raw json.RawMessage) (json.RawMessage, error) {
	var p Payload
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, &policy.ValidationError{
			Domain: policy.DomainLeadScore, Field: "payload",
			Message: fmt.Sprintf("malformed lead score payload: %v", err),
		}
	}
	if p.ScoreThreshold.Sign() <= 0 {
		return nil, &policy.ValidationError{
			Domain: policy.DomainLeadScore, Field: "score_threshold",
			Message: "score threshold must be positive",
		}
	}
	switch p.ResetPeriod {
	case ResetWeekly, ResetMonthly, ResetQuarterly, ResetNever:
	default:
		return nil, &policy.ValidationError{
			Domain: policy.DomainLeadScore, Field: "reset_period",
			Message: fmt.Sprintf("unknown reset period %q", p.ResetPeriod),
		}
	}
	if p.HotLeadMultiplier.Sign() <= 0 {
		return nil, &policy.ValidationError{
			Domain: policy.DomainLeadScore, Field: "hot_lead_multiplier",
			Message: "hot lead multiplier must be positive",
		}
	}
	return json.Marshal(p)
}

// NeedsRecompute reports whether moving from old to new invalidates derived
// score state. A nil old payload means the user had no effective settings
// captured before, so recompute.
func NeedsRecompute(old, new json.RawMessage) bool {
	if old == nil {
		return true
	}
	op, err := Parse(old)
	if err != nil {
		return true
	}
	np, err := Parse(new)
	if err != nil {
		return true
	}
	return op.ScoreThreshold.Cmp(np.ScoreThreshold) != 0 || op.ResetPeriod != np.ResetPeriod
}

// Parse decodes a normalized lead score payload.
func Parse(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode lead score payload: %w", err)
	}
	return p, nil
}
