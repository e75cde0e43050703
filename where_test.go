package osprey

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divinevideo/osprey/querylang"
)

var (
	testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testEnd   = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

const testTimeBounds = "`__time` >= '2024-01-01T00:00:00.000Z' AND `__time` < '2024-01-02T00:00:00.000Z'"

func TestBuildWhereClauseTimeBoundsOnly(t *testing.T) {
	b := newTestBackend(&fakeClient{}, BackendOptions{})
	where, err := b.BuildWhereClause(testStart, testEnd, "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, testTimeBounds, where)
}

func TestBuildWhereClauseWithQueryFilter(t *testing.T) {
	root := &querylang.Compare{
		Left:  &querylang.Name{Identifier: "age"},
		Op:    querylang.CmpLt,
		Right: &querylang.IntLiteral{Value: 30},
	}
	b := newTestBackend(&fakeClient{}, BackendOptions{ParseQueryFilter: stubParser(root)})

	where, err := b.BuildWhereClause(testStart, testEnd, "age < 30", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, testTimeBounds+" AND (`age` IS NOT NULL AND `age` < 30)", where)
}

func TestBuildWhereClauseWithoutParserFails(t *testing.T) {
	b := newTestBackend(&fakeClient{}, BackendOptions{})
	_, err := b.BuildWhereClause(testStart, testEnd, "age < 30", nil, nil)
	require.Error(t, err)
}

func TestBuildWhereClausePropagatesParseError(t *testing.T) {
	parse := func(string) (*querylang.ValidatedQuery, error) {
		return nil, fmt.Errorf("syntax error at offset 3")
	}
	b := newTestBackend(&fakeClient{}, BackendOptions{ParseQueryFilter: parse})
	_, err := b.BuildWhereClause(testStart, testEnd, "age <", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
}

func TestBuildWhereClauseEntityExpansion(t *testing.T) {
	features := fakeFeatures{
		"UserId":    "user",
		"UserEmail": "user",
		"GuildId":   "guild",
	}
	b := newTestBackend(&fakeClient{}, BackendOptions{Features: features})

	entity := &EntityFilter{ID: "u1", Type: "user"}
	where, err := b.BuildWhereClause(testStart, testEnd, "", entity, nil)
	require.NoError(t, err)
	assert.Equal(t, testTimeBounds+" AND (`UserEmail` = 'u1' OR `UserId` = 'u1')", where)
}

func TestBuildWhereClauseEntityWhitelist(t *testing.T) {
	features := fakeFeatures{"UserId": "user", "UserEmail": "user"}
	b := newTestBackend(&fakeClient{}, BackendOptions{Features: features})

	entity := &EntityFilter{ID: "u1", Type: "user", FeatureFilters: []string{"UserId"}}
	where, err := b.BuildWhereClause(testStart, testEnd, "", entity, nil)
	require.NoError(t, err)
	assert.Equal(t, testTimeBounds+" AND (`UserId` = 'u1')", where)
}

func TestBuildWhereClauseEntityEmptyMatchIsFalse(t *testing.T) {
	features := fakeFeatures{"UserId": "user"}
	b := newTestBackend(&fakeClient{}, BackendOptions{Features: features})

	entity := &EntityFilter{ID: "u1", Type: "user", FeatureFilters: []string{"nonexistent"}}
	where, err := b.BuildWhereClause(testStart, testEnd, "", entity, nil)
	require.NoError(t, err)
	assert.Equal(t, testTimeBounds+" AND 1=0", where)
}

func TestBuildWhereClauseEntityWithoutMapperIsFalse(t *testing.T) {
	b := newTestBackend(&fakeClient{}, BackendOptions{})
	where, err := b.BuildWhereClause(testStart, testEnd, "", &EntityFilter{ID: "u1", Type: "user"}, nil)
	require.NoError(t, err)
	assert.Contains(t, where, "1=0")
}

func TestBuildWhereClauseEntityIDEscaped(t *testing.T) {
	features := fakeFeatures{"UserId": "user"}
	b := newTestBackend(&fakeClient{}, BackendOptions{Features: features})

	entity := &EntityFilter{ID: "o'brien", Type: "user"}
	where, err := b.BuildWhereClause(testStart, testEnd, "", entity, nil)
	require.NoError(t, err)
	assert.Contains(t, where, "`UserId` = 'o\\'brien'")
}

func TestBuildWhereClauseAbilities(t *testing.T) {
	b := newTestBackend(&fakeClient{}, BackendOptions{})
	abilities := []Ability{
		fakeAbility{filter: &querylang.LegacyFilter{Type: "selector", Dimension: "org", Value: "acme"}},
		fakeAbility{}, // no row constraint
		nil,
	}
	where, err := b.BuildWhereClause(testStart, testEnd, "", nil, abilities)
	require.NoError(t, err)
	assert.Equal(t, testTimeBounds+" AND (`org` = 'acme')", where)
}

func TestBuildWhereClauseAbilityFailureIsLoud(t *testing.T) {
	b := newTestBackend(&fakeClient{}, BackendOptions{})
	abilities := []Ability{
		fakeAbility{filter: &querylang.LegacyFilter{Type: "regex", Dimension: "org"}},
	}
	_, err := b.BuildWhereClause(testStart, testEnd, "", nil, abilities)
	require.Error(t, err)
	assert.True(t, IsTranslationError(err))
}

func TestParseQueryFilterEmptyIsNoFragment(t *testing.T) {
	b := newTestBackend(&fakeClient{}, BackendOptions{})
	fragment, err := b.ParseQueryFilter("")
	require.NoError(t, err)
	assert.Equal(t, "", fragment)
}
