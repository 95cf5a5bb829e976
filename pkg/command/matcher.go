package command

import "reflect"

// ValueMatcher is the condition the previous value of an entry must satisfy for a write to apply.
type ValueMatcher int

// Value matchers. The *OrNew variants are entered once a forwarded write may already have
// been applied, so that re-applying it on retry is recognised as a match.
const (
	MatchAlways ValueMatcher = iota
	MatchNever
	MatchExpected
	MatchExpectedOrNull
	MatchNonNull
	MatchExpectedOrNew
	MatchExpectedOrNewOrNull
)

var matcherNames = map[ValueMatcher]string{
	MatchAlways:              "MATCH_ALWAYS",
	MatchNever:               "MATCH_NEVER",
	MatchExpected:            "MATCH_EXPECTED",
	MatchExpectedOrNull:      "MATCH_EXPECTED_OR_NULL",
	MatchNonNull:             "MATCH_NON_NULL",
	MatchExpectedOrNew:       "MATCH_EXPECTED_OR_NEW",
	MatchExpectedOrNewOrNull: "MATCH_EXPECTED_OR_NEW_OR_NULL",
}

func (m ValueMatcher) String() string {
	if name, ok := matcherNames[m]; ok {
		return name
	}

	return "MATCH_UNKNOWN"
}

// ForRetry returns the matcher a retried write must use.
func (m ValueMatcher) ForRetry() ValueMatcher {
	switch m {
	case MatchExpected:
		return MatchExpectedOrNew
	case MatchExpectedOrNull:
		return MatchExpectedOrNewOrNull
	case MatchNonNull:
		return MatchAlways
	default:
		return m
	}
}

// Matches reports whether a write with the expected previous value and the new value may apply
// over the current value. found is false when the entry does not exist.
func (m ValueMatcher) Matches(current any, found bool, expected, newValue any) bool {
	switch m {
	case MatchAlways:
		return true
	case MatchNever:
		return false
	case MatchExpected:
		return sameValue(current, found, expected)
	case MatchExpectedOrNull:
		return !found || sameValue(current, found, expected)
	case MatchNonNull:
		return found
	case MatchExpectedOrNew:
		return sameValue(current, found, expected) || sameValue(current, found, newValue)
	case MatchExpectedOrNewOrNull:
		return !found || sameValue(current, found, expected) || sameValue(current, found, newValue)
	}

	return false
}

// sameValue compares the current value with a reference; a nil reference stands for "absent".
func sameValue(current any, found bool, ref any) bool {
	if ref == nil {
		return !found
	}

	return found && reflect.DeepEqual(current, ref)
}
