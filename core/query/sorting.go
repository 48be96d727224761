// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package query

import (
	"fmt"
	"net/url"
	"strings"
)

// Order is a sort direction
type Order string

// Sort directions
const (
	OrderAsc  Order = "ASC"
	OrderDesc Order = "DESC"
)

// SortingConfig configures a sorted route.
type SortingConfig struct {
	// Fields is the allow-list of sortable fields
	Fields []string
	// IgnoreUnknown drops fields which are not in the allow-list instead of
	// rejecting the request
	IgnoreUnknown bool
}

// Validate checks the configuration for consistency
func (c SortingConfig) Validate() error {
	for _, f := range c.Fields {
		if strings.TrimSpace(f) == "" || strings.HasPrefix(f, "-") {
			return fmt.Errorf("invalid sorting field '%s'", f)
		}
	}
	return nil
}

// SortField is a single sort instruction
type SortField struct {
	Field string `json:"field"`
	Order Order  `json:"order"`
}

// SortingInfo describes the requested ordering, first entry has highest precedence
type SortingInfo struct {
	SortingFields []string    `json:"sortingFields,omitempty"`
	Sort          []SortField `json:"sort"`
	Query         string      `json:"query,omitempty"`
}

// ParseSorting parses the sort parameter. Tokens are separated by ',' and a
// leading '-' selects descending order. Only allow-listed fields are accepted.
func ParseSorting(values url.Values, config SortingConfig) (SortingInfo, error) {
	qe := &Error{}
	info := SortingInfo{
		SortingFields: config.Fields,
		Sort:          []SortField{},
	}

	value, ok := single(values, ParamSort, qe)
	if !ok {
		return info, qe.errOrNil()
	}

	var tokens []string
	for _, token := range strings.Split(value, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		order := OrderAsc
		field := token
		if strings.HasPrefix(token, "-") {
			order = OrderDesc
			field = strings.TrimSpace(token[1:])
		}
		if field == "" {
			qe.add(FieldError{Param: ParamSort, Value: token, Reason: "missing field name"})
			continue
		}
		if !contains(config.Fields, field) {
			if !config.IgnoreUnknown {
				qe.add(FieldError{Param: ParamSort, Field: field, Reason: "field is not sortable"})
			}
			continue
		}
		info.Sort = append(info.Sort, SortField{Field: field, Order: order})
		if order == OrderDesc {
			field = "-" + field
		}
		tokens = append(tokens, field)
	}

	if err := qe.errOrNil(); err != nil {
		return SortingInfo{}, err
	}
	if len(tokens) > 0 {
		info.Query = strings.Join(tokens, ",")
	}
	return info, nil
}
