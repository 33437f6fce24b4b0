/*
task.go - Task settings domain

PURPOSE:
  Controls how many engagement tasks a rep is expected to clear each day and
  when an unfinished task counts as late. Registered under the "task" slug.

RECOMPUTE:
  Any committed change re-derives task quotas, so NeedsRecompute always
  reports true and the dispatcher hands the change to the quota recalculator.

SEE ALSO:
  - policy/descriptor.go: Registration contract
  - handler.go: Post-commit quota recalculation
*/
package task

import (
	"encoding/json"
	"fmt"

	"github.com/engagekit/policy-engine/policy"
)

const Slug = "task"

func init() {
	policy.RegisterDomain(policy.Descriptor{
		Domain:         policy.DomainTask,
		Slug:           Slug,
		Codec:          Codec{},
		NeedsRecompute: func(_, _ json.RawMessage) bool { return true },
	})
}

// Payload is the task settings document stored on an override record.
type Payload struct {
	DailyTaskQuota      int  `json:"daily_task_quota"`
	LateAfterDays       int  `json:"late_after_days"`
	CarryOverUnfinished bool `json:"carry_over_unfinished"`
}

type Codec struct{}

// Normalize validates and canonicalizes a raw task payload.
func (Codec) Normalize(raw json.RawMessage) (json.RawMessage, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &policy.ValidationError{
			Domain: policy.DomainTask, Field: "payload",
			Message: fmt.Sprintf("malformed task payload: %v", err),
		}
	}
	if p.DailyTaskQuota <= 0 {
		return nil, &policy.ValidationError{
			Domain: policy.DomainTask, Field: "daily_task_quota",
			Message: "daily task quota must be positive",
		}
	}
	if p.LateAfterDays < 0 {
		return nil, &policy.ValidationError{
			Domain: policy.DomainTask, Field: "late_after_days",
			Message: "late threshold cannot be negative",
		}
	}
	return json.Marshal(p)
}

// Parse decodes a normalized task payload.
func Parse(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode task payload: %w", err)
	}
	return p, nil
}
