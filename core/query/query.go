// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package query parses the pagination, sorting and filtering query parameters
of list requests into typed descriptors.

The recognised parameters are

	?limit=20&offset=40
	?sort=-date,name
	?filter=year>=1890;name==john,surname=@doe

A sort token prefixed with '-' sorts descending. In a filter, ';' separates
clauses which must all hold and ',' separates conditions of which at least
one must hold.

Parsers never consult global state: the allow-lists and page size bounds
are passed in as configuration. Malformed input is reported as *Error,
which carries every offending parameter and renders as 400 Bad Request.
*/
package query

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Names of the recognised query parameters
const (
	ParamLimit  = "limit"
	ParamOffset = "offset"
	ParamSort   = "sort"
	ParamFilter = "filter"
)

// FieldError describes one offending query parameter
type FieldError struct {
	Param  string `json:"param"`
	Field  string `json:"field,omitempty"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

// Error is returned by the parsers for malformed or disallowed input.
type Error struct {
	Errors []FieldError `json:"errors"`
}

func (e *Error) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msg := fe.Param
		if fe.Field != "" {
			msg += "." + fe.Field
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", msg, fe.Reason))
	}
	return "invalid query parameters: " + strings.Join(msgs, "; ")
}

// StatusCode returns http.StatusBadRequest
func (e *Error) StatusCode() int {
	return http.StatusBadRequest
}

// Details returns the list of offending parameters
func (e *Error) Details() interface{} {
	return e.Errors
}

func (e *Error) add(fe FieldError) {
	e.Errors = append(e.Errors, fe)
}

// errOrNil returns nil for an empty error list, so callers can use plain err != nil checks
func (e *Error) errOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Merge joins the field errors of several parser errors into one *Error.
// Errors which are not *Error are returned unchanged, first one wins.
func Merge(errs ...error) error {
	merged := &Error{}
	for _, err := range errs {
		if err == nil {
			continue
		}
		qe, ok := err.(*Error)
		if !ok {
			return err
		}
		merged.Errors = append(merged.Errors, qe.Errors...)
	}
	return merged.errOrNil()
}

// single returns the only value of a query parameter. Repeated parameters are
// rejected since their meaning would be ambiguous.
func single(values url.Values, param string, qe *Error) (string, bool) {
	array, ok := values[param]
	if !ok || len(array) == 0 {
		return "", false
	}
	if len(array) > 1 {
		qe.add(FieldError{Param: param, Reason: "parameter must not be repeated"})
		return "", false
	}
	return array[0], true
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}
