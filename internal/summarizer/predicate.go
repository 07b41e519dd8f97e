package summarizer

import "strings"

// Predicate tests whether one item record matches the user's question.
type Predicate func(item map[string]any) bool

// statusFields are the fields inspected, in order, for a status-like value.
var statusFields = []string{"status", "approvalStatus", "state"}

// activeFlagFields are the boolean flags the default rule falls back to.
var activeFlagFields = []string{"isActiveLogic", "active", "isActive"}

// predicateRule maps query keywords to the predicate that answers them.
// Rules are evaluated in priority order; the first keyword hit wins.
type predicateRule struct {
	keywords    []string
	description string
	matches     Predicate
}

var predicateRules = []predicateRule{
	{
		keywords:    []string{"soft approved", "soft_approved"},
		description: "soft approved",
		matches:     matchSoftApproved,
	},
	{
		keywords:    []string{"approved"},
		description: "approved",
		matches:     matchApproved,
	},
	{
		keywords:    []string{"active"},
		description: "active",
		matches:     matchActive,
	},
}

// PredicateFor selects the matching predicate for a natural-language query.
// The returned description labels the sub-count in summaries (for example
// "12 soft approved"). Queries that mention no known status term fall back to
// the generic active-flag rule.
func PredicateFor(userQuery string) (Predicate, string) {
	queryLower := strings.ToLower(userQuery)
	for _, rule := range predicateRules {
		for _, kw := range rule.keywords {
			if strings.Contains(queryLower, kw) {
				return rule.matches, rule.description
			}
		}
	}
	return matchActiveFlags, "active/approved"
}

func statusValue(item map[string]any, field string) string {
	s, _ := item[field].(string)
	return strings.ToUpper(s)
}

func matchSoftApproved(item map[string]any) bool {
	for _, field := range statusFields {
		if statusValue(item, field) == "SOFT_APPROVED" {
			return true
		}
	}
	return strings.Contains(strings.ToLower(statusValue(item, "status")), "soft")
}

func matchApproved(item map[string]any) bool {
	for _, field := range statusFields[:2] {
		switch statusValue(item, field) {
		case "APPROVED", "SOFT_APPROVED":
			return true
		}
	}
	return strings.Contains(strings.ToLower(statusValue(item, "status")), "approved")
}

func matchActive(item map[string]any) bool {
	if matchActiveFlags(item) {
		return true
	}
	return statusValue(item, "status") == "ACTIVE"
}

func matchActiveFlags(item map[string]any) bool {
	for _, field := range activeFlagFields {
		if flag, ok := item[field].(bool); ok && flag {
			return true
		}
	}
	return false
}
