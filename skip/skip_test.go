package skip_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagekit/policy-engine/policy"
	"github.com/engagekit/policy-engine/skip"
)

func TestNormalize_AppendsOtherWhenMissing(t *testing.T) {
	raw := json.RawMessage(`{"skip_reasons": ["Not interested", "Bad timing"], "require_note": true, "max_skips_per_day": 5}`)

	normalized, err := skip.Codec{}.Normalize(raw)
	require.NoError(t, err)

	p, err := skip.Parse(normalized)
	require.NoError(t, err)
	assert.Contains(t, p.SkipReasons, skip.ReasonOther)
	assert.Equal(t, []string{"Not interested", "Bad timing", skip.ReasonOther}, p.SkipReasons)
}

func TestNormalize_KeepsOtherWhenPresent(t *testing.T) {
	raw := json.RawMessage(`{"skip_reasons": ["Other", "Wrong person"], "max_skips_per_day": 3}`)

	normalized, err := skip.Codec{}.Normalize(raw)
	require.NoError(t, err)

	p, err := skip.Parse(normalized)
	require.NoError(t, err)

	count := 0
	for _, r := range p.SkipReasons {
		if r == skip.ReasonOther {
			count++
		}
	}
	assert.Equal(t, 1, count, "Other must not be duplicated")
}

func TestNormalize_EmptyReasonList_StillGetsOther(t *testing.T) {
	normalized, err := skip.Codec{}.Normalize(json.RawMessage(`{"skip_reasons": []}`))
	require.NoError(t, err)

	p, err := skip.Parse(normalized)
	require.NoError(t, err)
	assert.Equal(t, []string{skip.ReasonOther}, p.SkipReasons)
}

func TestNormalize_RejectsDuplicateReasons(t *testing.T) {
	_, err := skip.Codec{}.Normalize(json.RawMessage(`{"skip_reasons": ["Busy", "Busy"]}`))
	assert.ErrorIs(t, err, policy.ErrValidation)
}

func TestNormalize_RejectsEmptyReason(t *testing.T) {
	_, err := skip.Codec{}.Normalize(json.RawMessage(`{"skip_reasons": [""]}`))
	assert.ErrorIs(t, err, policy.ErrValidation)
}

func TestNormalize_RejectsNegativeMaxSkips(t *testing.T) {
	_, err := skip.Codec{}.Normalize(json.RawMessage(`{"skip_reasons": [], "max_skips_per_day": -1}`))
	assert.ErrorIs(t, err, policy.ErrValidation)
}

func TestNormalize_RejectsMalformedJSON(t *testing.T) {
	_, err := skip.Codec{}.Normalize(json.RawMessage(`{"skip_reasons": "nope"}`))
	assert.ErrorIs(t, err, policy.ErrValidation)
}

func TestRegistered_NoRecompute(t *testing.T) {
	desc, ok := policy.LookupDomain(policy.DomainSkip)
	require.True(t, ok)
	assert.Equal(t, skip.Slug, desc.Slug)
	assert.False(t, desc.NeedsRecompute(nil, nil))
}
