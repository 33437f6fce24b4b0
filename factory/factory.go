/*
Package factory wires the settings domains together.

PURPOSE:
  Importing this package registers every settings domain (task, skip,
  lead score, unsubscribe mail) and exposes the default payloads a new
  company is provisioned with. Product can adjust a default by editing one
  JSON literal; no cascade code changes.

USAGE:
  import "github.com/engagekit/policy-engine/factory"

  defaults := factory.DefaultPayloads()
  err := engine.ProvisionCompany(ctx, company, defaults)

SEE ALSO:
  - policy/descriptor.go: Domain registration
  - policy/provision.go: Company bootstrap consuming the defaults
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/engagekit/policy-engine/policy"

	// Register the settings domains.
	_ "github.com/engagekit/policy-engine/leadscore"
	_ "github.com/engagekit/policy-engine/skip"
	_ "github.com/engagekit/policy-engine/task"
	_ "github.com/engagekit/policy-engine/unsubmail"
)

// =============================================================================
// COMPANY DEFAULTS
// =============================================================================

// DefaultPayloads returns the normalized admin-level payload for every
// registered domain. Panics on a malformed preset; the presets are compile
// time constants and a bad one should fail loudly at startup.
func DefaultPayloads() map[policy.Domain]json.RawMessage {
	out := make(map[policy.Domain]json.RawMessage, len(policy.RegisteredDomains()))
	for _, desc := range policy.RegisteredDomains() {
		preset, ok := presets[desc.Domain]
		if !ok {
			panic(fmt.Sprintf("factory: no default preset for domain %q", desc.Domain))
		}
		normalized, err := desc.Codec.Normalize(json.RawMessage(preset))
		if err != nil {
			panic(fmt.Sprintf("factory: bad default preset for domain %q: %v", desc.Domain, err))
		}
		out[desc.Domain] = normalized
	}
	return out
}

// Normalize runs a raw payload through the codec of its domain.
func Normalize(d policy.Domain, raw json.RawMessage) (json.RawMessage, error) {
	desc, ok := policy.LookupDomain(d)
	if !ok {
		return nil, &policy.ValidationError{
			Domain: d, Field: "domain",
			Message: fmt.Sprintf("unknown settings domain %q", d),
		}
	}
	return desc.Codec.Normalize(raw)
}

var presets = map[policy.Domain]string{
	policy.DomainTask: `{
		"daily_task_quota": 20,
		"late_after_days": 3,
		"carry_over_unfinished": true
	}`,
	policy.DomainSkip: `{
		"skip_reasons": ["Not interested", "Wrong person", "Bad timing", "Other"],
		"require_note": false,
		"max_skips_per_day": 10
	}`,
	policy.DomainLeadScore: `{
		"score_threshold": "50",
		"reset_period": "monthly",
		"hot_lead_multiplier": "1.5"
	}`,
	policy.DomainUnsubscribeMail: `{
		"semi_automatic": {"mail": true, "automated_mail": true, "reply_to": true, "automated_reply_to": true, "bounce": false},
		"automatic": {"mail": true, "automated_mail": true, "reply_to": true, "automated_reply_to": true, "bounce": true}
	}`,
}
