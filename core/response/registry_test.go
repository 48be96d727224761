package response

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pret/core/query"
)

func TestResponseKind(t *testing.T) {
	registry := NewRegistry()
	registry.MustDeclareController("user", Raw("raw controller"))
	registry.MustDeclare(Key("user", "list"), Standard(Options{}))
	registry.MustDeclare(Key("auth", "login"), Raw("login"))

	kind, ok := registry.ResponseKind(Key("user", "list"))
	assert.True(t, ok)
	assert.Equal(t, KindStandard, kind, "handler overrides controller")

	kind, _ = registry.ResponseKind(Key("user", "read"))
	assert.Equal(t, KindRaw, kind, "controller applies to undeclared handler")

	kind, _ = registry.ResponseKind(Key("auth", "login"))
	assert.Equal(t, KindRaw, kind)

	kind, ok = registry.ResponseKind(Key("health", "get"))
	assert.True(t, ok)
	assert.Equal(t, KindStandard, kind, "intercept all defaults to standard")

	registry.InterceptAll = false
	_, ok = registry.ResponseKind(Key("health", "get"))
	assert.False(t, ok)
}

func TestZeroRegistry(t *testing.T) {
	registry := &Registry{}
	require.NoError(t, registry.Declare(Key("user", "list"), Standard(Options{IsSorted: true, SortingFields: []string{"name"}})))
	assert.Equal(t, []Feature{FeatureSorting}, registry.Features(Key("user", "list")))

	_, ok := registry.ResponseKind(Key("health", "get"))
	assert.False(t, ok, "zero registry does not intercept undeclared routes")
	route := registry.MustResolve(Key("user", "list"))
	assert.Equal(t, KindStandard, route.Kind)
}

func TestFeatures(t *testing.T) {
	registry := NewRegistry()
	registry.MustDeclareController("user", Sorted("name"))
	registry.MustDeclare(Key("user", "list"), Filtered("email"), Paginated(query.PaginationConfig{}))

	assert.Equal(t, []Feature{FeaturePagination, FeatureSorting, FeatureFiltering}, registry.Features(Key("user", "list")))
	assert.Equal(t, []Feature{FeatureSorting}, registry.Features(Key("user", "read")))
	assert.Empty(t, registry.Features(Key("auth", "login")))
}

func TestDeclareMerges(t *testing.T) {
	registry := NewRegistry()
	key := Key("user", "list")
	registry.MustDeclare(key, Standard(Options{Description: "first", IsSorted: true, SortingFields: []string{"a"}}))
	registry.MustDeclare(key, Raw("second"))
	registry.MustDeclare(key, Filtered("b"))

	route, err := registry.Resolve(key)
	require.NoError(t, err)
	assert.Equal(t, KindRaw, route.Kind)
	assert.Equal(t, "second", route.Description)
	assert.Equal(t, []Feature{FeatureSorting, FeatureFiltering}, route.Features)
	assert.Equal(t, http.StatusOK, route.Status)
}

func TestResolveConfigOverride(t *testing.T) {
	registry := NewRegistry()
	registry.MustDeclareController("user", Sorted("name"))
	registry.MustDeclare(Key("user", "list"), Sorted("name", "date"))

	route := registry.MustResolve(Key("user", "list"))
	assert.Equal(t, []string{"name", "date"}, route.Sorting.Fields)

	route = registry.MustResolve(Key("user", "read"))
	assert.Equal(t, []string{"name"}, route.Sorting.Fields)
}

func TestResolveMissingConfig(t *testing.T) {
	registry := NewRegistry()
	registry.MustDeclare(Key("user", "list"), Declaration{Features: []Feature{FeaturePagination}})
	_, err := registry.Resolve(Key("user", "list"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingConfig))

	registry = NewRegistry()
	registry.MustDeclare(Key("user", "list"), Declaration{Features: []Feature{FeaturePagination}})
	registry.MustDeclareController("user", Paginated(query.PaginationConfig{MaxPageSize: 50}))
	route, err := registry.Resolve(Key("user", "list"))
	require.NoError(t, err, "controller config satisfies handler feature")
	assert.Equal(t, 50, route.Pagination.MaxPageSize)

	assert.Panics(t, func() {
		registry := NewRegistry()
		registry.MustDeclare(Key("user", "list"), Declaration{Features: []Feature{FeatureFiltering}})
		New(&Builder{Registry: registry}).Handler(Key("user", "list"), nil)
	})
}

func TestDeclareValidation(t *testing.T) {
	registry := NewRegistry()
	assert.Error(t, registry.Declare(Key("", "x"), Raw("")))
	assert.Error(t, registry.Declare(Key("user", "list"), Declaration{Kind: "fancy"}))
	assert.Error(t, registry.Declare(Key("user", "list"), Declaration{Features: []Feature{"grouping"}}))
	assert.Error(t, registry.Declare(Key("user", "list"), Standard(Options{IsPaginated: true, MinPageSize: 10, MaxPageSize: 5})))
	assert.Error(t, registry.Declare(Key("user", "list"), Standard(Options{IsFiltered: true, FilteringFields: []string{"a>b"}})))
	assert.Error(t, registry.Declare(Key("user", "list"), Standard(Options{Status: 1000})))

	registry.MustResolve(Key("user", "list"))
	err := registry.Declare(Key("user", "read"), Raw(""))
	assert.True(t, errors.Is(err, ErrSealed))
}

func TestStandardOptions(t *testing.T) {
	d := Standard(Options{
		Description:     "users",
		Status:          http.StatusCreated,
		IsPaginated:     true,
		MinPageSize:     5,
		MaxPageSize:     100,
		DefaultPageSize: 20,
		IsSorted:        true,
		SortingFields:   []string{"name"},
		IsFiltered:      true,
		FilteringFields: []string{"email"},
	})
	assert.Equal(t, KindStandard, d.Kind)
	assert.Equal(t, []Feature{FeaturePagination, FeatureSorting, FeatureFiltering}, d.Features)
	assert.Equal(t, query.PaginationConfig{MinPageSize: 5, MaxPageSize: 100, DefaultPageSize: 20}, *d.Pagination)
	assert.Equal(t, []string{"name"}, d.Sorting.Fields)
	assert.Equal(t, []string{"email"}, d.Filtering.Fields)
	assert.Equal(t, http.StatusCreated, d.Status)
}
