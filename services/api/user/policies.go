// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package user

import (
	"github.com/relabs-tech/pret/core/access"
)

// Abilities is the access.AbilityFactory for users: a user may read and
// update itself, an admin may do anything.
func Abilities(auth *access.Authorization) *access.Ability {
	b := &access.AbilityBuilder{}
	if auth.HasRole(access.RoleUser) {
		self := auth.UserID
		b.Can([]access.Action{access.ActionRead, access.ActionUpdate}, Subject, func(object interface{}) bool {
			switch u := object.(type) {
			case *User:
				return u.ID == self
			case User:
				return u.ID == self
			}
			return false
		})
	}
	if auth.HasRole(access.RoleAdmin) {
		b.Can([]access.Action{access.ActionManage}, access.SubjectAll, nil)
	}
	return b.Build()
}

// Can returns a policy handler for a subject level check
func Can(action access.Action) access.PolicyHandler {
	return func(ability *access.Ability) bool {
		return ability.Can(action, Subject, nil)
	}
}
