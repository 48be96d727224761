// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package access

import (
	"context"
	"net/http"
)

// Action is an operation on a subject
type Action string

// Actions. ActionManage stands for any action.
const (
	ActionManage Action = "manage"
	ActionList   Action = "list"
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// SubjectAll stands for any subject
const SubjectAll = "all"

// Rule grants (or with Inverted, denies) an action on a subject. The
// optional condition restricts the rule to matching objects.
type Rule struct {
	Action    Action
	Subject   string
	Condition func(object interface{}) bool
	Inverted  bool
}

// Ability is the set of rules which apply to one principal.
type Ability struct {
	rules []Rule
}

// AbilityFactory builds the ability for an authorization, which may be nil
// for anonymous requests.
type AbilityFactory func(auth *Authorization) *Ability

// AbilityBuilder collects rules with Can and Cannot.
type AbilityBuilder struct {
	rules []Rule
}

// Can adds a rule granting the actions on the subject. The condition may be nil.
func (b *AbilityBuilder) Can(actions []Action, subject string, condition func(object interface{}) bool) *AbilityBuilder {
	for _, action := range actions {
		b.rules = append(b.rules, Rule{Action: action, Subject: subject, Condition: condition})
	}
	return b
}

// Cannot adds a rule denying the actions on the subject. The condition may be nil.
func (b *AbilityBuilder) Cannot(actions []Action, subject string, condition func(object interface{}) bool) *AbilityBuilder {
	for _, action := range actions {
		b.rules = append(b.rules, Rule{Action: action, Subject: subject, Condition: condition, Inverted: true})
	}
	return b
}

// Build returns the ability
func (b *AbilityBuilder) Build() *Ability {
	return &Ability{rules: append([]Rule(nil), b.rules...)}
}

// Can reports whether the action is allowed on the subject.
//
// With a nil object, the check is on subject level: a conditional rule
// counts as a match, since there may be objects it allows. Later rules take
// precedence over earlier ones.
func (a *Ability) Can(action Action, subject string, object interface{}) bool {
	if a == nil {
		return false
	}
	for i := len(a.rules) - 1; i >= 0; i-- {
		rule := a.rules[i]
		if rule.Action != action && rule.Action != ActionManage {
			continue
		}
		if rule.Subject != subject && rule.Subject != SubjectAll {
			continue
		}
		if object != nil && rule.Condition != nil && !rule.Condition(object) {
			continue
		}
		if rule.Inverted && object == nil && rule.Condition != nil {
			// a conditional denial does not deny the whole subject
			continue
		}
		return !rule.Inverted
	}
	return false
}

// Cannot is the negation of Can
func (a *Ability) Cannot(action Action, subject string, object interface{}) bool {
	return !a.Can(action, subject, object)
}

// PolicyHandler checks an ability
type PolicyHandler func(ability *Ability) bool

type contextKeyAbilityType struct{}

var contextKeyAbility = &contextKeyAbilityType{}

// AbilityFromContext returns the ability stored by CheckPolicies
func AbilityFromContext(r *http.Request) *Ability {
	ability, _ := r.Context().Value(contextKeyAbility).(*Ability)
	return ability
}

// CheckPolicies returns a middleware which builds the ability of the
// request's authorization and rejects the request unless every handler
// passes. Requests without authorization are answered with 401, requests
// failing a policy with 403. The ability is stored in the request context for
// object level checks in the handler.
func CheckPolicies(factory AbilityFactory, handlers ...PolicyHandler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := AuthorizationFromContext(r.Context())
			if auth == nil {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			ability := factory(auth)
			for _, handler := range handlers {
				if !handler(ability) {
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}
			ctx := context.WithValue(r.Context(), contextKeyAbility, ability)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
