// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Operator is a filter comparison operator
type Operator string

// Filter operators
const (
	OpEquals         Operator = "=="
	OpNotEquals      Operator = "!="
	OpLessOrEqual    Operator = "<="
	OpLess           Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpGreater        Operator = ">"
	OpContains       Operator = "=@"
	OpNotContains    Operator = "!@"
	OpStartsWith     Operator = "=^"
	OpEndsWith       Operator = "=$"
)

// operators in match order, two-character tokens before their one-character prefixes
var operators = []Operator{
	OpEquals, OpNotEquals, OpLessOrEqual, OpGreaterOrEqual,
	OpContains, OpNotContains, OpStartsWith, OpEndsWith,
	OpLess, OpGreater,
}

// FilteringConfig configures a filtered route.
type FilteringConfig struct {
	// Fields is the allow-list of filterable fields
	Fields []string
	// IgnoreUnknown drops conditions on fields which are not in the allow-list
	// instead of rejecting the request
	IgnoreUnknown bool
}

// Validate checks the configuration for consistency
func (c FilteringConfig) Validate() error {
	for _, f := range c.Fields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("empty filtering field")
		}
		if _, _, _, ok := splitCondition(f); ok {
			return fmt.Errorf("filtering field '%s' contains an operator", f)
		}
	}
	return nil
}

// Condition is a single field comparison
type Condition struct {
	Field     string   `json:"field"`
	Operation Operator `json:"operation"`
	Value     string   `json:"value"`
}

// AnyOf holds conditions of which at least one must hold
type AnyOf struct {
	AnyOf []Condition `json:"anyOf"`
}

// Filter holds clauses which must all hold
type Filter struct {
	AllOf []AnyOf `json:"allOf"`
}

// FilteringInfo describes the requested filter
type FilteringInfo struct {
	FilteringFields []string `json:"filteringFields,omitempty"`
	Filter          Filter   `json:"filter"`
	Query           string   `json:"query,omitempty"`
}

// ParseFiltering parses the filter parameter into an AND-of-ORs tree. Clauses
// are separated by ';', conditions within a clause by ','.
func ParseFiltering(values url.Values, config FilteringConfig) (FilteringInfo, error) {
	qe := &Error{}
	info := FilteringInfo{
		FilteringFields: config.Fields,
		Filter:          Filter{AllOf: []AnyOf{}},
	}

	value, ok := single(values, ParamFilter, qe)
	if !ok || strings.TrimSpace(value) == "" {
		return info, qe.errOrNil()
	}

	var clauses []string
	for _, clause := range strings.Split(value, ";") {
		anyOf := AnyOf{AnyOf: []Condition{}}
		var conditions []string
		for _, condition := range strings.Split(clause, ",") {
			field, op, v, ok := splitCondition(condition)
			if !ok {
				qe.add(FieldError{Param: ParamFilter, Value: condition, Reason: "malformed condition"})
				continue
			}
			if !contains(config.Fields, field) {
				if !config.IgnoreUnknown {
					qe.add(FieldError{Param: ParamFilter, Field: field, Reason: "field is not filterable"})
				}
				continue
			}
			anyOf.AnyOf = append(anyOf.AnyOf, Condition{Field: field, Operation: op, Value: v})
			conditions = append(conditions, field+string(op)+v)
		}
		if len(anyOf.AnyOf) > 0 {
			info.Filter.AllOf = append(info.Filter.AllOf, anyOf)
			clauses = append(clauses, strings.Join(conditions, ","))
		}
	}

	if err := qe.errOrNil(); err != nil {
		return FilteringInfo{}, err
	}
	if len(clauses) > 0 {
		info.Query = strings.Join(clauses, ";")
	}
	return info, nil
}

// splitCondition finds the first position in s where an operator starts and
// takes the longest operator at that position.
func splitCondition(s string) (field string, op Operator, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		for _, candidate := range operators {
			if strings.HasPrefix(s[i:], string(candidate)) {
				field = strings.TrimSpace(s[:i])
				if field == "" {
					return "", "", "", false
				}
				return field, candidate, s[i+len(candidate):], true
			}
		}
	}
	return "", "", "", false
}

// Fields returns the distinct fields the filter refers to, in order of appearance
func (f Filter) Fields() []string {
	var fields []string
	for _, anyOf := range f.AllOf {
		for _, c := range anyOf.AnyOf {
			if !contains(fields, c.Field) {
				fields = append(fields, c.Field)
			}
		}
	}
	return fields
}

// Match evaluates the filter. The lookup returns the string representations
// of a field's values; a field with several values (for example a list of
// roles) matches a condition if any of its values does, except for the
// negated operators which require all values to match.
func (f Filter) Match(lookup func(field string) []string) bool {
	for _, anyOf := range f.AllOf {
		matched := false
		for _, c := range anyOf.AnyOf {
			if c.Match(lookup(c.Field)...) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Match evaluates the condition against the given field values. Ordering
// operators compare numerically when both sides are numbers.
func (c Condition) Match(actual ...string) bool {
	negated := c.Operation == OpNotEquals || c.Operation == OpNotContains
	if negated {
		for _, a := range actual {
			if !c.matchOne(a) {
				return false
			}
		}
		return true
	}
	for _, a := range actual {
		if c.matchOne(a) {
			return true
		}
	}
	return false
}

func (c Condition) matchOne(actual string) bool {
	switch c.Operation {
	case OpEquals:
		return actual == c.Value
	case OpNotEquals:
		return actual != c.Value
	case OpContains:
		return strings.Contains(actual, c.Value)
	case OpNotContains:
		return !strings.Contains(actual, c.Value)
	case OpStartsWith:
		return strings.HasPrefix(actual, c.Value)
	case OpEndsWith:
		return strings.HasSuffix(actual, c.Value)
	}

	cmp := strings.Compare(actual, c.Value)
	a, errA := strconv.ParseFloat(actual, 64)
	b, errB := strconv.ParseFloat(c.Value, 64)
	if errA == nil && errB == nil {
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		default:
			cmp = 0
		}
	}
	switch c.Operation {
	case OpLess:
		return cmp < 0
	case OpLessOrEqual:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterOrEqual:
		return cmp >= 0
	}
	return false
}
