// Package filter evaluates Mongo-style filter maps against minileaf
// documents: logical, comparison, set, existence, regex, and array
// operators over dotted field paths, per spec §4.5.
package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/minileaf/minileaf/pkg/document"
)

// Filter is the wire form: field path (or logical operator key) to either a
// literal value or an operator sub-map. Compound filters nest under
// "$and"/"$or"/"$not".
type Filter = map[string]any

// Evaluate reports whether doc satisfies filter.
func Evaluate(doc *document.Document, filter Filter) (bool, error) {
	for _, e := range sortedEntries(filter) {
		ok, err := evaluateEntry(doc, e.key, e.value)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// sortedEntries iterates filter in a stable key order so evaluation (and
// any short-circuit errors surfaced) is deterministic across runs.
func sortedEntries(filter Filter) []entry {
	entries := make([]entry, 0, len(filter))
	for k, v := range filter {
		entries = append(entries, entry{k, v})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	return entries
}

type entry struct {
	key   string
	value any
}

func evaluateEntry(doc *document.Document, key string, operand any) (bool, error) {
	if strings.HasPrefix(key, "$") {
		return evaluateLogical(doc, key, operand)
	}

	return evaluateField(doc, key, operand)
}

func evaluateLogical(doc *document.Document, op string, operand any) (bool, error) {
	switch op {
	case "$and":
		subs, err := asFilterList(operand)
		if err != nil {
			return false, fmt.Errorf("filter: $and: %w", err)
		}

		for _, sub := range subs {
			ok, err := Evaluate(doc, sub)
			if err != nil {
				return false, err
			}

			if !ok {
				return false, nil
			}
		}

		return true, nil
	case "$or":
		subs, err := asFilterList(operand)
		if err != nil {
			return false, fmt.Errorf("filter: $or: %w", err)
		}

		for _, sub := range subs {
			ok, err := Evaluate(doc, sub)
			if err != nil {
				return false, err
			}

			if ok {
				return true, nil
			}
		}

		return false, nil
	case "$not":
		sub, ok := operand.(Filter)
		if !ok {
			return false, fmt.Errorf("filter: $not: operand must be a filter map, got %T", operand)
		}

		matched, err := Evaluate(doc, sub)
		if err != nil {
			return false, err
		}

		return !matched, nil
	default:
		return false, fmt.Errorf("filter: unknown logical operator %q", op)
	}
}

func asFilterList(operand any) ([]Filter, error) {
	list, ok := operand.([]Filter)
	if ok {
		return list, nil
	}

	raw, ok := operand.([]any)
	if !ok {
		return nil, fmt.Errorf("operand must be a list of filters, got %T", operand)
	}

	subs := make([]Filter, 0, len(raw))

	for _, item := range raw {
		sub, ok := item.(Filter)
		if !ok {
			return nil, fmt.Errorf("list element must be a filter map, got %T", item)
		}

		subs = append(subs, sub)
	}

	return subs, nil
}

func evaluateField(doc *document.Document, path string, operand any) (bool, error) {
	actual, exists := document.GetPath(doc, path)
	if !exists {
		actual = nil
	}

	sub, isOperatorMap := operand.(Filter)
	if !isOperatorMap {
		return equals(actual, operand), nil
	}

	options, _ := sub["$options"].(string)

	for _, e := range sortedEntries(sub) {
		if e.key == "$options" {
			continue
		}

		ok, err := evaluateOperator(doc, actual, exists, e.key, e.value, options)
		if err != nil {
			return false, fmt.Errorf("filter: field %q: %w", path, err)
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

func evaluateOperator(doc *document.Document, actual any, exists bool, op string, operand any, regexOptions string) (bool, error) {
	switch op {
	case "$gt", "$gte", "$lt", "$lte", "$ne":
		return evaluateComparison(actual, op, operand)
	case "$in":
		return evaluateIn(actual, operand)
	case "$nin":
		ok, err := evaluateIn(actual, operand)
		if err != nil {
			return false, err
		}

		return !ok, nil
	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return false, fmt.Errorf("$exists operand must be bool, got %T", operand)
		}

		return exists == want, nil
	case "$regex":
		return evaluateRegex(actual, operand, regexOptions)
	case "$elemMatch":
		sub, ok := operand.(Filter)
		if !ok {
			return false, fmt.Errorf("$elemMatch operand must be a filter map, got %T", operand)
		}

		return evaluateElemMatch(doc, actual, sub)
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

func evaluateComparison(actual any, op string, operand any) (bool, error) {
	actualVal, actualOK := toValue(actual)
	operandVal, operandOK := toValue(operand)

	if !actualOK || !operandOK {
		if op == "$ne" {
			return !equals(actual, operand), nil
		}

		return false, nil
	}

	cmp, err := compareNormalized(actualVal, operandVal)
	if err != nil {
		return false, err
	}

	switch op {
	case "$gt":
		return cmp > 0, nil
	case "$gte":
		return cmp >= 0, nil
	case "$lt":
		return cmp < 0, nil
	case "$lte":
		return cmp <= 0, nil
	case "$ne":
		return cmp != 0, nil
	default:
		return false, fmt.Errorf("unsupported comparison operator %q", op)
	}
}

// compareNormalized compares two document.Values, applying the §4.5
// temporal epoch-ms normalization rule whenever either side is a Timestamp.
func compareNormalized(a, b document.Value) (int, error) {
	_, aIsTS := a.(document.Timestamp)
	_, bIsTS := b.(document.Timestamp)

	if aIsTS || bIsTS {
		aMs, aErr := epochMillis(a)
		bMs, bErr := epochMillis(b)

		if aErr == nil && bErr == nil {
			switch {
			case aMs < bMs:
				return -1, nil
			case aMs > bMs:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	return document.Compare(a, b), nil
}

func evaluateIn(actual any, operand any) (bool, error) {
	list, ok := operand.([]any)
	if !ok {
		return false, fmt.Errorf("$in/$nin operand must be a list, got %T", operand)
	}

	for _, candidate := range list {
		if equals(actual, candidate) {
			return true, nil
		}
	}

	return false, nil
}

func evaluateRegex(actual any, pattern any, options string) (bool, error) {
	text, ok := actual.(string)
	if !ok {
		if v, vok := actual.(document.Text); vok {
			text = string(v)
		} else {
			return false, nil
		}
	}

	patternStr, ok := pattern.(string)
	if !ok {
		return false, fmt.Errorf("$regex operand must be a string, got %T", pattern)
	}

	if strings.Contains(options, "i") {
		patternStr = "(?i)" + patternStr
	}

	re, err := regexp.Compile(patternStr)
	if err != nil {
		return false, fmt.Errorf("invalid $regex pattern: %w", err)
	}

	return re.MatchString(text), nil
}

func evaluateElemMatch(doc *document.Document, actual any, sub Filter) (bool, error) {
	arr, ok := actual.(document.Array)
	if !ok {
		return false, nil
	}

	for _, elem := range arr {
		obj, ok := elem.(document.Object)
		if !ok {
			continue
		}

		matched, err := Evaluate(obj.Doc, sub)
		if err != nil {
			return false, err
		}

		if matched {
			return true, nil
		}
	}

	return false, nil
}

// equals implements §4.5 equality semantics: numbers normalize, missing
// paths compare equal only to explicit null, and both document.Value and
// raw Go literal operands are accepted.
func equals(actual any, operand any) bool {
	actualVal, actualOK := toValue(actual)
	operandVal, operandOK := toValue(operand)

	if !actualOK || !operandOK {
		return actualOK == operandOK && actual == nil && operand == nil
	}

	cmp, err := compareNormalized(actualVal, operandVal)
	if err != nil {
		return false
	}

	return cmp == 0
}

// toValue normalizes an operand (either a document.Value already pulled
// from a document, or a raw Go literal supplied by the caller building a
// filter) into a document.Value for comparison.
func toValue(v any) (document.Value, bool) {
	switch t := v.(type) {
	case nil:
		return document.Null{}, true
	case document.Value:
		return t, true
	case bool:
		return document.Bool(t), true
	case int:
		return document.Int(int64(t)), true
	case int64:
		return document.Int(t), true
	case float64:
		return document.Float(t), true
	case string:
		return document.Text(t), true
	case time.Time:
		return document.Timestamp(t), true
	case []byte:
		return document.Binary(t), true
	default:
		return nil, false
	}
}

// epochMillis computes the 64-bit epoch-millisecond value for v per §4.5's
// temporal normalization rules: (a) ISO-8601 text parses directly, (b)
// integers below 10^10 are seconds, (c) floats whose truncation is below
// 10^10 are fractional seconds.
func epochMillis(v document.Value) (int64, error) {
	const secondsBoundary = 10_000_000_000

	switch t := v.(type) {
	case document.Timestamp:
		return t.Time().UnixMilli(), nil
	case document.Text:
		parsed, err := time.Parse(time.RFC3339Nano, string(t))
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, string(t))
			if err != nil {
				return 0, fmt.Errorf("not ISO-8601 parseable: %w", err)
			}
		}

		return parsed.UnixMilli(), nil
	case document.Int:
		n := int64(t)
		if n < secondsBoundary {
			return n * 1000, nil
		}

		return n, nil
	case document.Float:
		f := float64(t)
		if int64(f) < secondsBoundary {
			return int64(f * 1000), nil
		}

		return int64(f), nil
	default:
		return 0, fmt.Errorf("value of kind %v has no epoch-ms representation", v.Kind())
	}
}
