package querylang

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adapt(t *testing.T, f *LegacyFilter) string {
	t.Helper()
	sql, err := AdaptLegacyFilter(f)
	require.NoError(t, err)
	return sql
}

func TestAdaptLegacySelector(t *testing.T) {
	f := &LegacyFilter{Type: "selector", Dimension: "user", Value: "u1"}
	assert.Equal(t, "`user` = 'u1'", adapt(t, f))
}

func TestAdaptLegacySelectorNull(t *testing.T) {
	f := &LegacyFilter{Type: "selector", Dimension: "email"}
	assert.Equal(t, "`email` IS NULL", adapt(t, f))
}

func TestAdaptLegacyNot(t *testing.T) {
	f := &LegacyFilter{
		Type:  "not",
		Field: &LegacyFilter{Type: "selector", Dimension: "kind", Value: "spam"},
	}
	assert.Equal(t, "NOT (`kind` = 'spam')", adapt(t, f))
}

func TestAdaptLegacyNotWithoutField(t *testing.T) {
	_, err := AdaptLegacyFilter(&LegacyFilter{Type: "not"})
	require.Error(t, err)
	assert.True(t, IsTransformError(err, ErrUnsupportedLegacyFilter))
}

func TestAdaptLegacyAndOr(t *testing.T) {
	fields := []*LegacyFilter{
		{Type: "selector", Dimension: "a", Value: "1"},
		{Type: "selector", Dimension: "b", Value: "2"},
	}
	assert.Equal(t, "(`a` = '1') AND (`b` = '2')", adapt(t, &LegacyFilter{Type: "and", Fields: fields}))
	assert.Equal(t, "(`a` = '1') OR (`b` = '2')", adapt(t, &LegacyFilter{Type: "or", Fields: fields}))
}

func TestAdaptLegacyAndWithoutFields(t *testing.T) {
	_, err := AdaptLegacyFilter(&LegacyFilter{Type: "and"})
	require.Error(t, err)
	assert.True(t, IsTransformError(err, ErrUnsupportedLegacyFilter))
}

func TestAdaptLegacyIn(t *testing.T) {
	f := &LegacyFilter{Type: "in", Dimension: "kind", Values: []any{"a", "b"}}
	assert.Equal(t, "`kind` IN ('a', 'b')", adapt(t, f))
}

func TestAdaptLegacyInWithoutValues(t *testing.T) {
	_, err := AdaptLegacyFilter(&LegacyFilter{Type: "in", Dimension: "kind"})
	require.Error(t, err)
	assert.True(t, IsTransformError(err, ErrUnsupportedLegacyFilter))
}

func TestAdaptLegacyBound(t *testing.T) {
	cases := []struct {
		name     string
		filter   *LegacyFilter
		expected string
	}{
		{
			"both bounds",
			&LegacyFilter{Type: "bound", Dimension: "v", Lower: float64(5), Upper: float64(10)},
			"`v` >= 5 AND `v` <= 10",
		},
		{
			"strict bounds",
			&LegacyFilter{Type: "bound", Dimension: "v", Lower: float64(5), LowerStrict: true, Upper: float64(10), UpperStrict: true},
			"`v` > 5 AND `v` < 10",
		},
		{
			"lower only",
			&LegacyFilter{Type: "bound", Dimension: "v", Lower: "a"},
			"`v` >= 'a'",
		},
		{
			"upper only strict",
			&LegacyFilter{Type: "bound", Dimension: "v", Upper: float64(3), UpperStrict: true},
			"`v` < 3",
		},
		{
			"no bounds",
			&LegacyFilter{Type: "bound", Dimension: "v"},
			"1=1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, adapt(t, tc.filter))
		})
	}
}

func TestAdaptLegacyColumnComparison(t *testing.T) {
	f := &LegacyFilter{Type: "columnComparison", Dimensions: []string{"a", "b"}}
	assert.Equal(t, "`a` = `b`", adapt(t, f))

	_, err := AdaptLegacyFilter(&LegacyFilter{Type: "columnComparison", Dimensions: []string{"a"}})
	require.Error(t, err)
	assert.True(t, IsTransformError(err, ErrUnsupportedLegacyFilter))
}

func TestAdaptLegacyUnknownTypeFailsLoudly(t *testing.T) {
	_, err := AdaptLegacyFilter(&LegacyFilter{Type: "regex", Dimension: "a"})
	require.Error(t, err)
	assert.True(t, IsTransformError(err, ErrUnsupportedLegacyFilter))

	_, err = AdaptLegacyFilter(nil)
	require.Error(t, err)
	assert.True(t, IsTransformError(err, ErrUnsupportedLegacyFilter))
}

func TestAdaptLegacyFromJSON(t *testing.T) {
	raw := `{
		"type": "and",
		"fields": [
			{"type": "selector", "dimension": "org", "value": "acme"},
			{"type": "not", "field": {"type": "in", "dimension": "kind", "values": ["spam", "scam"]}},
			{"type": "bound", "dimension": "score", "lower": 10, "lowerStrict": true}
		]
	}`
	var f LegacyFilter
	require.NoError(t, json.Unmarshal([]byte(raw), &f))

	expected := "(`org` = 'acme') AND (NOT (`kind` IN ('spam', 'scam'))) AND (`score` > 10)"
	assert.Equal(t, expected, adapt(t, &f))
}
