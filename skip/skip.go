/*
skip.go - Skip settings domain

PURPOSE:
  Controls the reasons a rep may pick when skipping a lead, whether a free
  text note is required, and how many skips a day are tolerated. Registered
  under the "skip" slug.

INVARIANT:
  The "Other" reason is always present. Normalize appends it when the caller
  leaves it out, so every stored payload offers the catch-all option.

RECOMPUTE:
  Skip settings carry no derived per-user state; changes never schedule a
  recompute.
*/
package skip

import (
	"encoding/json"
	"fmt"

	"github.com/engagekit/policy-engine/policy"
)

const Slug = "skip"

// ReasonOther is the catch-all skip reason that every payload must offer.
const ReasonOther = "Other"

func init() {
	policy.RegisterDomain(policy.Descriptor{
		Domain:         policy.DomainSkip,
		Slug:           Slug,
		Codec:          Codec{},
		NeedsRecompute: func(_, _ json.RawMessage) bool { return false },
	})
}

// Payload is the skip settings document stored on an override record.
type Payload struct {
	SkipReasons    []string `json:"skip_reasons"`
	RequireNote    bool     `json:"require_note"`
	MaxSkipsPerDay int      `json:"max_skips_per_day"`
}

type Codec struct{}

// Normalize validates a raw skip payload and guarantees ReasonOther is listed.
func (Codec) Normalize(raw json.RawMessage) (json.RawMessage, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &policy.ValidationError{
			Domain: policy.DomainSkip, Field: "payload",
			Message: fmt.Sprintf("malformed skip payload: %v", err),
		}
	}
	if p.MaxSkipsPerDay < 0 {
		return nil, &policy.ValidationError{
			Domain: policy.DomainSkip, Field: "max_skips_per_day",
			Message: "max skips per day cannot be negative",
		}
	}
	seen := make(map[string]bool, len(p.SkipReasons))
	for _, r := range p.SkipReasons {
		if r == "" {
			return nil, &policy.ValidationError{
				Domain: policy.DomainSkip, Field: "skip_reasons",
				Message: "skip reasons cannot be empty strings",
			}
		}
		if seen[r] {
			return nil, &policy.ValidationError{
				Domain: policy.DomainSkip, Field: "skip_reasons",
				Message: fmt.Sprintf("duplicate skip reason %q", r),
			}
		}
		seen[r] = true
	}
	if !seen[ReasonOther] {
		p.SkipReasons = append(p.SkipReasons, ReasonOther)
	}
	return json.Marshal(p)
}

// Parse decodes a normalized skip payload.
func Parse(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode skip payload: %w", err)
	}
	return p, nil
}
