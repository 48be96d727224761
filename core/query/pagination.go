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
)

// Default page size bounds, applied when a PaginationConfig leaves them unset
const (
	DefaultMinPageSize     = 1
	DefaultDefaultPageSize = 10
)

// BoundsPolicy decides what happens to a limit outside [MinPageSize,MaxPageSize]
type BoundsPolicy int

const (
	// BoundsClamp silently moves the limit into the allowed range
	BoundsClamp BoundsPolicy = iota
	// BoundsReject answers with 400 Bad Request
	BoundsReject
)

// PaginationConfig configures a paginated route. A MaxPageSize of 0 means
// there is no upper bound.
type PaginationConfig struct {
	MinPageSize     int
	MaxPageSize     int
	DefaultPageSize int
	Bounds          BoundsPolicy
}

// Validate checks the configuration for consistency
func (c PaginationConfig) Validate() error {
	if c.MinPageSize < 0 || c.MaxPageSize < 0 || c.DefaultPageSize < 0 {
		return fmt.Errorf("page sizes must not be negative")
	}
	c = c.withDefaults()
	if c.MaxPageSize > 0 && c.MinPageSize > c.MaxPageSize {
		return fmt.Errorf("minPageSize %d exceeds maxPageSize %d", c.MinPageSize, c.MaxPageSize)
	}
	if c.DefaultPageSize < c.MinPageSize || (c.MaxPageSize > 0 && c.DefaultPageSize > c.MaxPageSize) {
		return fmt.Errorf("defaultPageSize %d is outside of [%d,%d]", c.DefaultPageSize, c.MinPageSize, c.MaxPageSize)
	}
	return nil
}

func (c PaginationConfig) withDefaults() PaginationConfig {
	if c.MinPageSize < DefaultMinPageSize {
		c.MinPageSize = DefaultMinPageSize
	}
	if c.DefaultPageSize == 0 {
		c.DefaultPageSize = DefaultDefaultPageSize
		if c.DefaultPageSize < c.MinPageSize {
			c.DefaultPageSize = c.MinPageSize
		}
		if c.MaxPageSize > 0 && c.DefaultPageSize > c.MaxPageSize {
			c.DefaultPageSize = c.MaxPageSize
		}
	}
	return c
}

// PaginationInfo describes the page a handler is asked to return. Count is
// the total number of items and is filled in by the handler.
type PaginationInfo struct {
	Limit           int    `json:"limit"`
	Offset          int    `json:"offset"`
	Count           *int   `json:"count,omitempty"`
	MinPageSize     int    `json:"minPageSize,omitempty"`
	MaxPageSize     int    `json:"maxPageSize,omitempty"`
	DefaultPageSize int    `json:"defaultPageSize,omitempty"`
	Query           string `json:"query,omitempty"`
}

// ParsePagination parses limit and offset from the query values.
//
// A missing limit yields the default page size, a missing offset yields 0.
// Non-integer values and negative offsets are rejected. Limits outside of the
// configured bounds are clamped or rejected according to the BoundsPolicy.
func ParsePagination(values url.Values, config PaginationConfig) (PaginationInfo, error) {
	config = config.withDefaults()
	qe := &Error{}

	info := PaginationInfo{
		Limit:           config.DefaultPageSize,
		MinPageSize:     config.MinPageSize,
		MaxPageSize:     config.MaxPageSize,
		DefaultPageSize: config.DefaultPageSize,
	}

	if value, ok := single(values, ParamLimit, qe); ok {
		limit, err := strconv.Atoi(value)
		switch {
		case err != nil:
			qe.add(FieldError{Param: ParamLimit, Value: value, Reason: "must be an integer"})
		case limit < config.MinPageSize || (config.MaxPageSize > 0 && limit > config.MaxPageSize):
			if config.Bounds == BoundsReject {
				reason := fmt.Sprintf("must be at least %d", config.MinPageSize)
				if config.MaxPageSize > 0 {
					reason = fmt.Sprintf("must be between %d and %d", config.MinPageSize, config.MaxPageSize)
				}
				qe.add(FieldError{Param: ParamLimit, Value: value, Reason: reason})
				break
			}
			if limit < config.MinPageSize {
				limit = config.MinPageSize
			} else {
				limit = config.MaxPageSize
			}
			info.Limit = limit
		default:
			info.Limit = limit
		}
	}

	if value, ok := single(values, ParamOffset, qe); ok {
		offset, err := strconv.Atoi(value)
		switch {
		case err != nil:
			qe.add(FieldError{Param: ParamOffset, Value: value, Reason: "must be an integer"})
		case offset < 0:
			qe.add(FieldError{Param: ParamOffset, Value: value, Reason: "must not be negative"})
		default:
			info.Offset = offset
		}
	}

	if err := qe.errOrNil(); err != nil {
		return PaginationInfo{}, err
	}
	info.Query = fmt.Sprintf("%s=%d&%s=%d", ParamLimit, info.Limit, ParamOffset, info.Offset)
	return info, nil
}
