package query

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(t *testing.T, rawQuery string) url.Values {
	v, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	return v
}

func TestPagination(t *testing.T) {
	config := PaginationConfig{MinPageSize: 5, MaxPageSize: 100, DefaultPageSize: 20}

	tests := []struct {
		name   string
		query  string
		limit  int
		offset int
	}{
		{"defaults", "", 20, 0},
		{"explicit", "limit=50&offset=100", 50, 100},
		{"clamped to max", "limit=500", 100, 0},
		{"clamped to min", "limit=1", 5, 0},
		{"zero limit clamped", "limit=0", 5, 0},
		{"offset only", "offset=7", 20, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParsePagination(values(t, tt.query), config)
			require.NoError(t, err)
			assert.Equal(t, tt.limit, info.Limit)
			assert.Equal(t, tt.offset, info.Offset)
			assert.Nil(t, info.Count)
			assert.Equal(t, 5, info.MinPageSize)
			assert.Equal(t, 100, info.MaxPageSize)
			assert.Equal(t, 20, info.DefaultPageSize)
		})
	}
}

func TestPaginationQuery(t *testing.T) {
	info, err := ParsePagination(values(t, "offset=40&limit=20"), PaginationConfig{})
	require.NoError(t, err)
	assert.Equal(t, "limit=20&offset=40", info.Query)
	assert.Equal(t, DefaultMinPageSize, info.MinPageSize)
	assert.Equal(t, 0, info.MaxPageSize)
}

func TestPaginationDefaultsWithoutBounds(t *testing.T) {
	info, err := ParsePagination(url.Values{}, PaginationConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultDefaultPageSize, info.Limit)

	info, err = ParsePagination(values(t, "limit=100000"), PaginationConfig{})
	require.NoError(t, err)
	assert.Equal(t, 100000, info.Limit)
}

func TestPaginationErrors(t *testing.T) {
	config := PaginationConfig{MinPageSize: 1, MaxPageSize: 10}

	for _, rawQuery := range []string{
		"limit=abc",
		"offset=-1",
		"offset=1.5",
		"limit=1&limit=2",
	} {
		_, err := ParsePagination(values(t, rawQuery), config)
		require.Error(t, err, rawQuery)
		qe, ok := err.(*Error)
		require.True(t, ok, rawQuery)
		assert.Equal(t, http.StatusBadRequest, qe.StatusCode())
		assert.Len(t, qe.Errors, 1, rawQuery)
	}

	_, err := ParsePagination(values(t, "limit=x&offset=y"), config)
	require.Error(t, err)
	assert.Len(t, err.(*Error).Errors, 2)
}

func TestPaginationReject(t *testing.T) {
	config := PaginationConfig{MinPageSize: 2, MaxPageSize: 10, Bounds: BoundsReject}
	_, err := ParsePagination(values(t, "limit=11"), config)
	require.Error(t, err)
	assert.Equal(t, ParamLimit, err.(*Error).Errors[0].Param)

	info, err := ParsePagination(values(t, "limit=10"), config)
	require.NoError(t, err)
	assert.Equal(t, 10, info.Limit)
}

func TestPaginationConfigValidate(t *testing.T) {
	assert.NoError(t, PaginationConfig{}.Validate())
	assert.NoError(t, PaginationConfig{MinPageSize: 5, MaxPageSize: 100, DefaultPageSize: 20}.Validate())
	assert.NoError(t, PaginationConfig{MaxPageSize: 5}.Validate())
	assert.Error(t, PaginationConfig{MinPageSize: 10, MaxPageSize: 5}.Validate())
	assert.Error(t, PaginationConfig{MinPageSize: 10, DefaultPageSize: 5}.Validate())
	assert.Error(t, PaginationConfig{MinPageSize: -1}.Validate())
}

func TestSorting(t *testing.T) {
	config := SortingConfig{Fields: []string{"name", "year", "date"}}

	info, err := ParseSorting(values(t, "sort=-date,name"), config)
	require.NoError(t, err)
	assert.Equal(t, []SortField{{Field: "date", Order: OrderDesc}, {Field: "name", Order: OrderAsc}}, info.Sort)
	assert.Equal(t, "-date,name", info.Query)
	assert.Equal(t, config.Fields, info.SortingFields)

	info, err = ParseSorting(url.Values{}, config)
	require.NoError(t, err)
	assert.NotNil(t, info.Sort)
	assert.Empty(t, info.Sort)
	assert.Empty(t, info.Query)

	info, err = ParseSorting(values(t, "sort= year , -name,"), config)
	require.NoError(t, err)
	assert.Equal(t, []SortField{{Field: "year", Order: OrderAsc}, {Field: "name", Order: OrderDesc}}, info.Sort)
	assert.Equal(t, "year,-name", info.Query)
}

func TestSortingFilteringEcho(t *testing.T) {
	sorting, err := ParseSorting(values(t, "sort=title,-year"), SortingConfig{Fields: []string{"popularity", "title", "year"}})
	require.NoError(t, err)
	assert.Equal(t, "title,-year", sorting.Query)

	raw := "author==John,author==Jake;year>=1890,year<=2000"
	filtering, err := ParseFiltering(values(t, "filter="+url.QueryEscape(raw)), FilteringConfig{Fields: []string{"author", "year"}})
	require.NoError(t, err)
	assert.Equal(t, raw, filtering.Query)
}

func TestSortingUnknownField(t *testing.T) {
	config := SortingConfig{Fields: []string{"name"}}

	_, err := ParseSorting(values(t, "sort=name,-password"), config)
	require.Error(t, err)
	qe := err.(*Error)
	require.Len(t, qe.Errors, 1)
	assert.Equal(t, "password", qe.Errors[0].Field)

	config.IgnoreUnknown = true
	info, err := ParseSorting(values(t, "sort=name,-password"), config)
	require.NoError(t, err)
	assert.Equal(t, []SortField{{Field: "name", Order: OrderAsc}}, info.Sort)
	assert.Equal(t, "name", info.Query)
}

func TestSortingMalformed(t *testing.T) {
	_, err := ParseSorting(values(t, "sort=-"), SortingConfig{Fields: []string{"name"}})
	assert.Error(t, err)
}

func TestFiltering(t *testing.T) {
	config := FilteringConfig{Fields: []string{"name", "year", "email"}}

	info, err := ParseFiltering(values(t, "filter="+url.QueryEscape("year>=1890;name==john,name=@doe")), config)
	require.NoError(t, err)
	expected := Filter{AllOf: []AnyOf{
		{AnyOf: []Condition{{Field: "year", Operation: OpGreaterOrEqual, Value: "1890"}}},
		{AnyOf: []Condition{
			{Field: "name", Operation: OpEquals, Value: "john"},
			{Field: "name", Operation: OpContains, Value: "doe"},
		}},
	}}
	assert.Equal(t, expected, info.Filter)
	assert.Equal(t, "year>=1890;name==john,name=@doe", info.Query)
	assert.Equal(t, []string{"year", "name"}, info.Filter.Fields())
}

func TestFilteringOperators(t *testing.T) {
	config := FilteringConfig{Fields: []string{"a"}}
	tests := map[string]Operator{
		"a==1": OpEquals,
		"a!=1": OpNotEquals,
		"a<=1": OpLessOrEqual,
		"a<1":  OpLess,
		"a>=1": OpGreaterOrEqual,
		"a>1":  OpGreater,
		"a=@1": OpContains,
		"a!@1": OpNotContains,
		"a=^1": OpStartsWith,
		"a=$1": OpEndsWith,
	}
	for condition, op := range tests {
		info, err := ParseFiltering(url.Values{ParamFilter: {condition}}, config)
		require.NoError(t, err, condition)
		require.Len(t, info.Filter.AllOf, 1)
		require.Len(t, info.Filter.AllOf[0].AnyOf, 1)
		c := info.Filter.AllOf[0].AnyOf[0]
		assert.Equal(t, "a", c.Field, condition)
		assert.Equal(t, op, c.Operation, condition)
		assert.Equal(t, "1", c.Value, condition)
	}
}

func TestFilteringValueContainsOperator(t *testing.T) {
	info, err := ParseFiltering(url.Values{ParamFilter: {"email==a==b"}}, FilteringConfig{Fields: []string{"email"}})
	require.NoError(t, err)
	assert.Equal(t, "a==b", info.Filter.AllOf[0].AnyOf[0].Value)
}

func TestFilteringErrors(t *testing.T) {
	config := FilteringConfig{Fields: []string{"name"}}
	for _, condition := range []string{"name", "==john", "name==john;", "password==x", "name=john"} {
		_, err := ParseFiltering(url.Values{ParamFilter: {condition}}, config)
		assert.Error(t, err, condition)
	}

	info, err := ParseFiltering(url.Values{}, config)
	require.NoError(t, err)
	assert.NotNil(t, info.Filter.AllOf)
	assert.Empty(t, info.Filter.AllOf)

	config.IgnoreUnknown = true
	info, err = ParseFiltering(url.Values{ParamFilter: {"password==x;name==y"}}, config)
	require.NoError(t, err)
	assert.Len(t, info.Filter.AllOf, 1)
	assert.Equal(t, "name==y", info.Query)
}

func TestFilteringConfigValidate(t *testing.T) {
	assert.NoError(t, FilteringConfig{Fields: []string{"name", "email"}}.Validate())
	assert.Error(t, FilteringConfig{Fields: []string{"a==b"}}.Validate())
	assert.Error(t, FilteringConfig{Fields: []string{" "}}.Validate())
}

func TestFilterMatch(t *testing.T) {
	config := FilteringConfig{Fields: []string{"name", "year", "roles"}}
	info, err := ParseFiltering(url.Values{ParamFilter: {"year>=1890;name==john,name=@doe;roles!=admin"}}, config)
	require.NoError(t, err)

	record := func(name, year string, roles ...string) func(string) []string {
		return func(field string) []string {
			switch field {
			case "name":
				return []string{name}
			case "year":
				return []string{year}
			case "roles":
				return roles
			}
			return nil
		}
	}

	assert.True(t, info.Filter.Match(record("john", "1900", "user")))
	assert.True(t, info.Filter.Match(record("jane doe", "1890", "user")))
	assert.False(t, info.Filter.Match(record("jane", "1900", "user")))
	assert.False(t, info.Filter.Match(record("john", "200", "user")))
	assert.False(t, info.Filter.Match(record("john", "1900", "user", "admin")))

	// numeric comparison, not lexical
	assert.True(t, Condition{Field: "year", Operation: OpGreater, Value: "200"}.Match("1000"))
	assert.True(t, Condition{Field: "name", Operation: OpLess, Value: "b"}.Match("a"))
}

func TestMerge(t *testing.T) {
	_, errA := ParseSorting(url.Values{ParamSort: {"x"}}, SortingConfig{})
	_, errB := ParseFiltering(url.Values{ParamFilter: {"y==1"}}, FilteringConfig{})
	err := Merge(nil, errA, errB)
	require.Error(t, err)
	assert.Len(t, err.(*Error).Errors, 2)
	assert.NoError(t, Merge(nil, nil))
}

func TestInfoJSON(t *testing.T) {
	count := 42
	info := PaginationInfo{Limit: 10, Offset: 0, Count: &count, MinPageSize: 1, DefaultPageSize: 10, Query: "limit=10&offset=0"}
	b, err := json.MarshalNoEscape(info)
	require.NoError(t, err)
	assert.Equal(t, `{"limit":10,"offset":0,"count":42,"minPageSize":1,"defaultPageSize":10,"query":"limit=10&offset=0"}`, string(b))

	sorting := SortingInfo{SortingFields: []string{"name"}, Sort: []SortField{{Field: "name", Order: OrderDesc}}, Query: "-name"}
	b, err = json.MarshalNoEscape(sorting)
	require.NoError(t, err)
	assert.Equal(t, `{"sortingFields":["name"],"sort":[{"field":"name","order":"DESC"}],"query":"-name"}`, string(b))

	filtering := FilteringInfo{Filter: Filter{AllOf: []AnyOf{}}}
	b, err = json.Marshal(filtering)
	require.NoError(t, err)
	assert.Equal(t, `{"filter":{"allOf":[]}}`, string(b))
}
