package osprey

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/divinevideo/osprey/querylang"
)

// timeLayout is what the analytics store receives for time bounds; it
// parses as DateTime64. Millisecond precision keeps cursor-derived bounds
// exact.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// BuildWhereClause combines the time range, the user's DSL filter, an
// optional entity filter, and zero or more ability filters into a single
// conjunctive WHERE fragment.
func (b *QueryBackend) BuildWhereClause(
	start, end time.Time,
	queryFilter string,
	entity *EntityFilter,
	abilities []Ability,
) (string, error) {
	timeCol := querylang.QuoteIdentifier("__time")
	parts := []string{
		fmt.Sprintf("%s >= %s", timeCol, querylang.FormatValue(formatTime(start))),
		fmt.Sprintf("%s < %s", timeCol, querylang.FormatValue(formatTime(end))),
	}

	if queryFilter != "" {
		fragment, err := b.ParseQueryFilter(queryFilter)
		if err != nil {
			return "", err
		}
		if fragment != "" {
			parts = append(parts, "("+fragment+")")
		}
	}

	if entity != nil {
		parts = append(parts, b.entityToSQLClause(entity))
	}

	for _, ability := range abilities {
		if ability == nil {
			continue
		}
		filter := ability.QueryFilter()
		if filter == nil {
			continue
		}
		fragment, err := querylang.AdaptLegacyFilter(filter)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+fragment+")")
	}

	return strings.Join(parts, " AND "), nil
}

// ParseQueryFilter parses, validates, and translates a DSL filter string.
// An empty filter yields an empty fragment.
func (b *QueryBackend) ParseQueryFilter(queryFilter string) (string, error) {
	if queryFilter == "" {
		return "", nil
	}
	if b.parse == nil {
		return "", fmt.Errorf("no query filter parser configured")
	}
	validated, err := b.parse(queryFilter)
	if err != nil {
		return "", err
	}
	return querylang.NewTransformer(validated).Transform()
}

// entityToSQLClause expands an entity filter into a disjunction over the
// features whose entity type matches and, if a whitelist is present, whose
// name is whitelisted. An empty expansion yields a guaranteed-false
// predicate so the filter can never widen results.
func (b *QueryBackend) entityToSQLClause(entity *EntityFilter) string {
	var mapping map[string]string
	if b.features != nil {
		mapping = b.features.FeatureNameToEntityType()
	}

	var whitelist map[string]struct{}
	if len(entity.FeatureFilters) > 0 {
		whitelist = make(map[string]struct{}, len(entity.FeatureFilters))
		for _, name := range entity.FeatureFilters {
			whitelist[name] = struct{}{}
		}
	}

	var matching []string
	for featureName, entityType := range mapping {
		if entityType != entity.Type {
			continue
		}
		if whitelist != nil {
			if _, ok := whitelist[featureName]; !ok {
				continue
			}
		}
		matching = append(matching, featureName)
	}

	if len(matching) == 0 {
		return "1=0"
	}
	sort.Strings(matching)

	idLit := querylang.FormatValue(entity.ID)
	clauses := make([]string, 0, len(matching))
	for _, feature := range matching {
		clauses = append(clauses, querylang.QuoteIdentifier(feature)+" = "+idLit)
	}
	return "(" + strings.Join(clauses, " OR ") + ")"
}
