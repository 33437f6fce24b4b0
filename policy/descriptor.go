/*
descriptor.go - Domain registration and payload codecs

PURPOSE:
  The four settings domains implement identical override/pointer semantics
  against different payload shapes. Each domain registers a small descriptor
  (URL slug, payload codec, recompute comparison) and the engine runs the one
  cascade implementation parameterized over it. This is what keeps the four
  copies of the algorithm from drifting apart.

HOW IT WORKS:
  1. Domain packages define their payload types and codec
  2. Domain packages register a Descriptor on init()
  3. Engine, factory, and HTTP layer look descriptors up by Domain or slug

USAGE:
  // In task/payload.go
  func init() {
      policy.RegisterDomain(policy.Descriptor{
          Domain: policy.DomainTask,
          Slug:   "task",
          Codec:  codec{},
          NeedsRecompute: func(old, new json.RawMessage) bool { return true },
      })
  }

SEE ALSO:
  - task/, skip/, leadscore/, unsubmail/: The registrants
  - factory/: Payload normalization entry point
*/
package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// PAYLOAD CODEC
// =============================================================================

// PayloadCodec validates a client-supplied payload and enforces the domain's
// write-time invariants (these are invariants, not defaults: they override
// whatever the client sent). Normalize returns the canonical stored form.
type PayloadCodec interface {
	Normalize(raw json.RawMessage) (json.RawMessage, error)
}

// =============================================================================
// DESCRIPTOR
// =============================================================================

type Descriptor struct {
	Domain Domain

	// Slug is the URL path segment, e.g. "lead-score" for DomainLeadScore.
	Slug string

	Codec PayloadCodec

	// NeedsRecompute reports whether a payload change alters the derived
	// outcome downstream jobs depend on. The relay skips domains whose
	// handler has nothing to do; this hook lets a handler short-circuit
	// no-op payload edits (e.g. a lead-score update that touched neither
	// threshold nor reset period).
	NeedsRecompute func(oldPayload, newPayload json.RawMessage) bool
}

// =============================================================================
// REGISTRY
// =============================================================================

var (
	domainRegistry = make(map[Domain]Descriptor)
	slugIndex      = make(map[string]Domain)
	registryMu     sync.RWMutex
)

// RegisterDomain adds a descriptor to the global registry.
// Call this from domain package init() functions.
func RegisterDomain(d Descriptor) {
	if !d.Domain.Valid() {
		panic(fmt.Sprintf("policy: cannot register unknown domain %q", d.Domain))
	}
	if d.Codec == nil {
		panic(fmt.Sprintf("policy: domain %q registered without a codec", d.Domain))
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	domainRegistry[d.Domain] = d
	slugIndex[d.Slug] = d.Domain
}

// LookupDomain finds a registered descriptor. The bool reports presence.
func LookupDomain(d Domain) (Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	desc, ok := domainRegistry[d]
	return desc, ok
}

// DomainBySlug resolves a URL slug back to its domain.
func DomainBySlug(slug string) (Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := slugIndex[slug]
	if !ok {
		return Descriptor{}, false
	}
	return domainRegistry[d], true
}

// RegisteredDomains returns all descriptors in stable slug order.
func RegisteredDomains() []Descriptor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Descriptor, 0, len(domainRegistry))
	for _, d := range domainRegistry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// mustLookupDomain is the engine-internal variant; unregistered domains are a
// wiring bug, not a runtime condition.
func mustLookupDomain(d Domain) (Descriptor, error) {
	desc, ok := LookupDomain(d)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: domain %q not registered", ErrValidation, d)
	}
	return desc, nil
}
