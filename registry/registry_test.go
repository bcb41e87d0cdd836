package registry_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexlapax/kernelspell/registry"
)

// TestComponentIDFromNameDeterminism verifies spec §8 property 1: equal
// names always produce equal ids, and distinct generated names produce
// distinct ids.
func TestComponentIDFromNameDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("equal names yield equal ids", prop.ForAll(
		func(s string) bool {
			return registry.ComponentIDFromName(s).Equal(registry.ComponentIDFromName(s))
		},
		gen.AnyString(),
	))

	properties.Property("distinct names yield distinct ids", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			return !registry.ComponentIDFromName(a).Equal(registry.ComponentIDFromName(b))
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestVersionOrderingProperty verifies spec §8 property 2.
func TestVersionOrderingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	digit := gen.IntRange(0, 5)

	properties.Property("is_newer_than matches lexicographic ordering", prop.ForAll(
		func(am, an, ap, bm, bn, bp int) bool {
			a := registry.Version{Major: am, Minor: an, Patch: ap}
			b := registry.Version{Major: bm, Minor: bn, Patch: bp}
			return a.IsNewerThan(b) == lexicographicGreater(a, b)
		},
		digit, digit, digit, digit, digit, digit,
	))

	properties.Property("is_compatible_with iff equal majors", prop.ForAll(
		func(am, bm int) bool {
			a := registry.Version{Major: am}
			b := registry.Version{Major: bm}
			return a.IsCompatibleWith(b) == (am == bm)
		},
		digit, digit,
	))

	properties.TestingRun(t)
}

func lexicographicGreater(a, b registry.Version) bool {
	if a.Major != b.Major {
		return a.Major > b.Major
	}
	if a.Minor != b.Minor {
		return a.Minor > b.Minor
	}
	return a.Patch > b.Patch
}

func TestRegisterGetCreate(t *testing.T) {
	r := registry.New()
	called := false
	err := r.Register(registry.Descriptor{
		Metadata: registry.Metadata{
			ID:   registry.ComponentIDFromName("echo-tool"),
			Kind: registry.KindTool,
			Name: "echo-tool",
			Tags: []string{"text", "debug"},
		},
		ConfigSchema: json.RawMessage(`{"type":"object","required":["prefix"],"properties":{"prefix":{"type":"string"}}}`),
		Factory: func(ctx context.Context, config json.RawMessage) (any, error) {
			called = true
			return "instance", nil
		},
	})
	require.NoError(t, err)

	d, err := r.Get("echo-tool")
	require.NoError(t, err)
	assert.Equal(t, registry.KindTool, d.Metadata.Kind)

	_, err = r.Create(context.Background(), "echo-tool", json.RawMessage(`{"prefix":"x"}`))
	require.NoError(t, err)
	assert.True(t, called)
}

func TestCreateRejectsConfigViolatingSchema(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(registry.Descriptor{
		Metadata:     registry.Metadata{ID: registry.ComponentIDFromName("strict"), Kind: registry.KindTool, Name: "strict"},
		ConfigSchema: json.RawMessage(`{"type":"object","required":["prefix"]}`),
		Factory: func(ctx context.Context, config json.RawMessage) (any, error) {
			return nil, nil
		},
	}))

	_, err := r.Create(context.Background(), "strict", json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestListFiltersByKindAndTags(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(registry.Descriptor{
		Metadata: registry.Metadata{ID: registry.ComponentIDFromName("a"), Kind: registry.KindAgent, Name: "a", Tags: []string{"llm"}},
		Factory:  func(ctx context.Context, config json.RawMessage) (any, error) { return nil, nil },
	}))
	require.NoError(t, r.Register(registry.Descriptor{
		Metadata: registry.Metadata{ID: registry.ComponentIDFromName("b"), Kind: registry.KindTool, Name: "b", Tags: []string{"llm", "search"}},
		Factory:  func(ctx context.Context, config json.RawMessage) (any, error) { return nil, nil },
	}))

	tools := r.List(registry.KindTool, nil)
	require.Len(t, tools, 1)
	assert.Equal(t, "b", tools[0].Name)

	withSearch := r.List("", []string{"search"})
	require.Len(t, withSearch, 1)
	assert.Equal(t, "b", withSearch[0].Name)
}

func TestGetUnknownComponentIsNotFound(t *testing.T) {
	r := registry.New()
	_, err := r.Get("missing")
	assert.Error(t, err)
}

func TestSearchMatchesNameDescriptionAndTags(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(registry.Descriptor{
		Metadata: registry.Metadata{
			ID:          registry.ComponentIDFromName("weather-tool"),
			Kind:        registry.KindTool,
			Name:        "weather-tool",
			Description: "fetches current conditions",
			Tags:        []string{"climate"},
		},
		Factory: func(ctx context.Context, config json.RawMessage) (any, error) { return nil, nil },
	}))

	assert.Len(t, r.Search("weather"), 1)
	assert.Len(t, r.Search("conditions"), 1)
	assert.Len(t, r.Search("climate"), 1)
	assert.Len(t, r.Search("nonexistent"), 0)
}
