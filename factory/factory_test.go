package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagekit/policy-engine/factory"
	"github.com/engagekit/policy-engine/policy"
	"github.com/engagekit/policy-engine/skip"
	"github.com/engagekit/policy-engine/unsubmail"
)

func TestDefaultPayloads_CoverEveryRegisteredDomain(t *testing.T) {
	defaults := factory.DefaultPayloads()

	for _, desc := range policy.RegisteredDomains() {
		assert.Contains(t, defaults, desc.Domain)
	}
	assert.Len(t, defaults, len(policy.RegisteredDomains()))
}

func TestDefaultPayloads_AreNormalized(t *testing.T) {
	defaults := factory.DefaultPayloads()

	skipPayload, err := skip.Parse(defaults[policy.DomainSkip])
	require.NoError(t, err)
	assert.Contains(t, skipPayload.SkipReasons, skip.ReasonOther)

	mailPayload, err := unsubmail.Parse(defaults[policy.DomainUnsubscribeMail])
	require.NoError(t, err)
	assert.True(t, mailPayload.SemiAutomatic.Mail)
	assert.True(t, mailPayload.Automatic.AutomatedReplyTo)
}

func TestNormalize_UnknownDomain(t *testing.T) {
	_, err := factory.Normalize(policy.Domain("bogus"), []byte(`{}`))
	assert.ErrorIs(t, err, policy.ErrValidation)
}

func TestEveryDomainRegisteredWithResolvableSlug(t *testing.T) {
	for _, d := range policy.AllDomains() {
		desc, ok := policy.LookupDomain(d)
		require.True(t, ok, "domain %s not registered", d)

		bySlug, ok := policy.DomainBySlug(desc.Slug)
		require.True(t, ok, "slug %s does not resolve", desc.Slug)
		assert.Equal(t, d, bySlug.Domain)
	}
}
