/*
unsubmail.go - Unsubscribe mail settings domain

PURPOSE:
  Controls which mail channels an unsubscribe suppresses, split into the
  semi-automatic and automatic sending modes. Registered under the
  "unsubscribe-mail" slug.

INVARIANT:
  The mail, automated_mail, reply_to, and automated_reply_to channels are
  always suppressed in both modes. Normalize forces those four to true no
  matter what the caller sent; only the bounce channel is a real choice.

RECOMPUTE:
  Suppression flags are read at send time; nothing derived is stored per
  user, so changes never schedule a recompute.
*/
package unsubmail

import (
	"encoding/json"
	"fmt"

	"github.com/engagekit/policy-engine/policy"
)

const Slug = "unsubscribe-mail"

func init() {
	policy.RegisterDomain(policy.Descriptor{
		Domain:         policy.DomainUnsubscribeMail,
		Slug:           Slug,
		Codec:          Codec{},
		NeedsRecompute: func(_, _ json.RawMessage) bool { return false },
	})
}

// SectionFlags lists the suppressible channels of one sending mode.
type SectionFlags struct {
	Mail             bool `json:"mail"`
	AutomatedMail    bool `json:"automated_mail"`
	ReplyTo          bool `json:"reply_to"`
	AutomatedReplyTo bool `json:"automated_reply_to"`
	Bounce           bool `json:"bounce"`
}

// forceMandatory pins the four channels that cannot be re-enabled.
func (f *SectionFlags) forceMandatory() {
	f.Mail = true
	f.AutomatedMail = true
	f.ReplyTo = true
	f.AutomatedReplyTo = true
}

// Payload is the unsubscribe mail settings document stored on an override
// record.
type Payload struct {
	SemiAutomatic SectionFlags `json:"semi_automatic"`
	Automatic     SectionFlags `json:"automatic"`
}

type Codec struct{}

// Normalize validates a raw unsubscribe mail payload and pins the mandatory
// channels on in both sections.
func (Codec) Normalize(raw json.RawMessage) (json.RawMessage, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &policy.ValidationError{
			Domain: policy.DomainUnsubscribeMail, Field: "payload",
			Message: fmt.Sprintf("malformed unsubscribe mail payload: %v", err),
		}
	}
	p.SemiAutomatic.forceMandatory()
	p.Automatic.forceMandatory()
	return json.Marshal(p)
}

// Parse decodes a normalized unsubscribe mail payload.
func Parse(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode unsubscribe mail payload: %w", err)
	}
	return p, nil
}
