// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package schema validates request bodies against JSON schemas
package schema

import (
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"
)

// Validator is a utility to validate JSON object against a given schema
type Validator struct {
	schemaValidators map[string]*gojsonschema.Schema
}

// NewValidatorFromFS creates a new Validator using schemas from schemaFS. Json files
// from / will be used as toplevel schemas, while json files in /refs/ will be used
// as references. The refs directory is optional.
func NewValidatorFromFS(schemaFS fs.FS) (*Validator, error) {

	readDir := func(dir string) ([]string, error) {
		var strs []string
		files, err := fs.ReadDir(schemaFS, dir)
		if err != nil {
			return nil, fmt.Errorf("cannot read dir %w", err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			str, err := fs.ReadFile(schemaFS, path.Join(dir, f.Name()))
			if err != nil {
				return nil, fmt.Errorf("cannot read file '%s' %w", f.Name(), err)
			}
			strs = append(strs, string(str))
		}
		return strs, nil
	}

	schemasString, err := readDir(".")
	if err != nil {
		return nil, err
	}

	var refsString []string
	if _, err := fs.Stat(schemaFS, "refs"); err == nil {
		if refsString, err = readDir("refs"); err != nil {
			return nil, err
		}
	}

	return NewValidator(schemasString, refsString)
}

// NewValidator creates a new Validator using schemas for the top level JSON schemas and refs
// for refs that may be referenced in the top level schemas. Top level schemas cannot reference each
// others. If a reference is mentioned, it can only be in the list of refs
func NewValidator(schemas []string, refs []string) (*Validator, error) {
	type schema struct {
		ID string `json:"$id"`
	}
	validator := Validator{schemaValidators: make(map[string]*gojsonschema.Schema)}
	for _, str := range schemas {
		s := schema{}
		err := json.Unmarshal([]byte(str), &s)
		if err != nil {
			return nil, fmt.Errorf("parse error '%v' in schema: '%s'", err, str)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("schema does not contain $id: '%s'", str)
		}
		sl := gojsonschema.NewSchemaLoader()

		for _, ref := range refs {
			loader := gojsonschema.NewStringLoader(ref)
			err := sl.AddSchemas(loader)
			if err != nil {
				return nil, fmt.Errorf("cannot add ref %s %s", refs, err)
			}
		}
		schema, err := sl.Compile(gojsonschema.NewStringLoader(str))
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s %s", s.ID, err)
		}
		validator.schemaValidators[s.ID] = schema
	}

	return &validator, nil
}

// HasSchema returns true if schemaID is known
func (v *Validator) HasSchema(schemaID string) bool {
	_, ok := v.schemaValidators[schemaID]
	return ok
}

// ValidateStruct validates the given json as a struct against schemaID. If no error is returned,
// then the passed json is valid
func (v *Validator) ValidateStruct(json interface{}, schemaID string) error {
	return v.validate(gojsonschema.NewGoLoader(json), schemaID)
}

// ValidateBytes validates a request body against schemaID
func (v *Validator) ValidateBytes(body []byte, schemaID string) error {
	return v.validate(gojsonschema.NewBytesLoader(body), schemaID)
}

// ValidateString validates the given json against schemaID. If no error is returned, then the
// passed json is valid
func (v *Validator) ValidateString(json, schemaID string) error {
	return v.validate(gojsonschema.NewStringLoader(json), schemaID)
}

// validate validates the given loader against schemaID. If no error is returned, then the passed json
// is valid
func (v *Validator) validate(loader gojsonschema.JSONLoader, schemaID string) error {

	schema, ok := v.schemaValidators[schemaID]
	if !ok {
		return fmt.Errorf("there is no schema %s ", schemaID)
	}

	result, err := schema.Validate(loader)
	if err != nil {
		return fmt.Errorf("cannot validate with schema %s %s", schemaID, err)
	}

	if !result.Valid() {
		verr := &ValidationError{SchemaID: schemaID}
		for _, e := range result.Errors() {
			verr.Violations = append(verr.Violations, Violation{Field: e.Field(), Message: e.Description()})
		}
		return verr
	}
	return nil
}

// Violation is a single schema violation of a document
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when a document does not match its schema.
// It maps to 400 Bad Request.
type ValidationError struct {
	SchemaID   string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msg := "the document is not valid :\n"
	for _, v := range e.Violations {
		msg += fmt.Sprintf("- %s: %s\n", v.Field, v.Message)
	}
	return msg
}

// StatusCode returns http.StatusBadRequest
func (e *ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

// Details returns the violations
func (e *ValidationError) Details() interface{} {
	return e.Violations
}

// MaxBodySize is the largest request body Decode accepts
const MaxBodySize = 1 << 20

func invalidBody(schemaID, message string) *ValidationError {
	return &ValidationError{SchemaID: schemaID, Violations: []Violation{{Field: "(root)", Message: message}}}
}

// Decode reads the request body, validates it against schemaID and unmarshals
// it into target. Invalid bodies result in a *ValidationError.
func (v *Validator) Decode(r *http.Request, schemaID string, target interface{}) error {
	if !v.HasSchema(schemaID) {
		return fmt.Errorf("there is no schema %s ", schemaID)
	}
	if r.Body == nil {
		return invalidBody(schemaID, "missing body")
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
	if err != nil {
		return invalidBody(schemaID, "cannot read body")
	}
	if len(body) > MaxBodySize {
		return invalidBody(schemaID, "body too large")
	}
	if !json.Valid(body) {
		return invalidBody(schemaID, "invalid JSON")
	}
	if err = v.ValidateBytes(body, schemaID); err != nil {
		return err
	}
	if err = json.Unmarshal(body, target); err != nil {
		return invalidBody(schemaID, err.Error())
	}
	return nil
}
