// Package policy evaluates feature access for a session: which moods are
// selectable, whether explicit content may be shown, and whether the avatar
// surface is unlocked. Every gating decision in the orchestrator goes
// through this one engine.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/amglabs/companion/domain"
)

// Access is the evaluated feature set for one session state. It is a pure
// function of the engine input; the engine holds no other state.
type Access struct {
	AvatarVisible bool     `json:"avatar_visible"`
	NSFWAllowed   bool     `json:"nsfw_allowed"`
	MoodsAllowed  []string `json:"moods_allowed"`
}

// AllowsMood reports whether the given mood may be selected.
func (a *Access) AllowsMood(m domain.Mood) bool {
	for _, allowed := range a.MoodsAllowed {
		if allowed == string(m) {
			return true
		}
	}
	return false
}

// Input is the slice of session state the policy sees.
type Input struct {
	Premium           bool    `json:"premium"`
	WorkSafe          bool    `json:"worksafe"`
	RelationshipLevel float64 `json:"relationship_level"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.companion_access.result"),
		rego.Module("companion_access.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate computes the feature set for the given input.
func (e *Engine) Evaluate(ctx context.Context, in Input) (*Access, error) {
	input := map[string]interface{}{
		"premium":            in.Premium,
		"worksafe":           in.WorkSafe,
		"relationship_level": in.RelationshipLevel,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, fmt.Errorf("policy returned no result")
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("policy returned unexpected type %T", results[0].Expressions[0].Value)
	}

	access := &Access{}
	if v, ok := obj["avatar_visible"].(bool); ok {
		access.AvatarVisible = v
	}
	if v, ok := obj["nsfw_allowed"].(bool); ok {
		access.NSFWAllowed = v
	}
	if moods, ok := obj["moods_allowed"].([]interface{}); ok {
		for _, m := range moods {
			if s, ok := m.(string); ok {
				access.MoodsAllowed = append(access.MoodsAllowed, s)
			}
		}
	}
	return access, nil
}

// DefaultPolicy is the shipped access policy: restricted moods and explicit
// content require premium, work-safe mode suppresses explicit content
// regardless, and the avatar unlocks at relationship level 25.
const DefaultPolicy = `
package companion_access

import rego.v1

default avatar_visible := false

avatar_visible if input.relationship_level >= 25

default nsfw_allowed := false

nsfw_allowed if {
	input.premium
	not input.worksafe
}

moods_allowed := ["normal", "clingy", "cute", "tsundere", "yandere"] if input.premium

moods_allowed := ["normal", "clingy", "cute"] if not input.premium

result := {
	"avatar_visible": avatar_visible,
	"nsfw_allowed": nsfw_allowed,
	"moods_allowed": moods_allowed,
}
`
