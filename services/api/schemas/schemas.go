// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package schemas embeds the JSON schemas of the API request bodies
package schemas

import (
	"embed"

	"github.com/relabs-tech/pret/core/schema"
)

// Schema IDs
const (
	UserCreate    = "https://pret.dev/schemas/user-create.json"
	UserUpdate    = "https://pret.dev/schemas/user-update.json"
	Login         = "https://pret.dev/schemas/login.json"
	Register      = "https://pret.dev/schemas/register.json"
	ResetPassword = "https://pret.dev/schemas/reset-password.json"
)

//go:embed *.json refs/*.json
var files embed.FS

// MustValidator returns a validator for all request schemas
func MustValidator() *schema.Validator {
	v, err := schema.NewValidatorFromFS(files)
	if err != nil {
		panic(err)
	}
	return v
}
