// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package response

import (
	"net/http"
	"reflect"

	"github.com/relabs-tech/pret/core/query"
)

// Envelope is the standard response body. The field order is part of the
// wire format.
type Envelope struct {
	Success     bool                  `json:"success"`
	IsArray     bool                  `json:"isArray,omitempty"`
	IsPaginated bool                  `json:"isPaginated,omitempty"`
	Pagination  *query.PaginationInfo `json:"pagination,omitempty"`
	IsSorted    bool                  `json:"isSorted,omitempty"`
	Sorting     *query.SortingInfo    `json:"sorting,omitempty"`
	IsFiltered  bool                  `json:"isFiltered,omitempty"`
	Filtering   *query.FilteringInfo  `json:"filtering,omitempty"`
	Message     string                `json:"message,omitempty"`
	Data        interface{}           `json:"data"`
}

// Interceptor transforms a handler's result before it is written
type Interceptor interface {
	Intercept(r *http.Request, value interface{}) (interface{}, error)
}

// InterceptorFunc adapts a function to the Interceptor interface
type InterceptorFunc func(r *http.Request, value interface{}) (interface{}, error)

// Intercept calls f(r, value)
func (f InterceptorFunc) Intercept(r *http.Request, value interface{}) (interface{}, error) {
	return f(r, value)
}

// StandardResponse returns the interceptor which wraps the results of
// standard routes in an Envelope, using the route and params from the
// request context. Results of raw routes, of routes which are not shaped and
// values which are errors pass through unchanged.
func StandardResponse() Interceptor {
	return InterceptorFunc(func(r *http.Request, value interface{}) (interface{}, error) {
		route := RouteFromContext(r.Context())
		if route == nil || !route.Intercept || route.Kind != KindStandard {
			return value, nil
		}
		if _, ok := value.(error); ok {
			return value, nil
		}
		params := ParamsFromContext(r.Context())
		if params == nil {
			params = &Params{}
		}
		return Wrap(value, route, params), nil
	})
}

// Wrap builds the envelope for a value. Info blocks are copied, so the
// envelope does not alias the params.
func Wrap(value interface{}, route *Route, params *Params) *Envelope {
	envelope := &Envelope{
		Success: true,
		Message: params.Message,
		Data:    value,
	}
	if isArray(value) {
		envelope.IsArray = true
		envelope.Data = nonNilSlice(value)
	}
	if route.Has(FeaturePagination) {
		info := params.PaginationInfo
		envelope.IsPaginated = true
		envelope.Pagination = &info
	}
	if route.Has(FeatureSorting) {
		info := params.SortingInfo
		envelope.IsSorted = true
		envelope.Sorting = &info
	}
	if route.Has(FeatureFiltering) {
		info := params.FilteringInfo
		envelope.IsFiltered = true
		envelope.Filtering = &info
	}
	return envelope
}

// isArray returns true for slices and arrays, byte slices excluded since
// they encode as strings
func isArray(value interface{}) bool {
	if value == nil {
		return false
	}
	t := reflect.TypeOf(value)
	switch t.Kind() {
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return true
	}
	return false
}

// nonNilSlice turns a nil slice into an empty one, so it encodes as []
func nonNilSlice(value interface{}) interface{} {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
