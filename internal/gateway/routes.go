// Package gateway provides route resolution.
package gateway

import "regexp"

// RouteRule binds a compiled path pattern to an upstream and a token cost.
type RouteRule struct {
	Pattern  *regexp.Regexp
	Upstream string
	Cost     int
}

// RouteTable resolves inbound paths to upstreams and token costs. Rules are
// evaluated in order; the first match wins. Paths matching no rule cost one
// token and fall back to the "default" upstream when one is configured.
type RouteTable struct {
	rules      []RouteRule
	hasDefault bool
}

// DefaultUpstream names the fallback upstream.
const DefaultUpstream = "default"

// NewRouteTable constructs a table over ordered rules.
func NewRouteTable(rules []RouteRule, hasDefault bool) *RouteTable {
	kept := make([]RouteRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Pattern == nil {
			continue
		}
		if rule.Cost < 1 {
			rule.Cost = 1
		}
		kept = append(kept, rule)
	}
	return &RouteTable{rules: kept, hasDefault: hasDefault}
}

// Cost returns the token cost for a path.
func (t *RouteTable) Cost(path string) int {
	if t == nil {
		return 1
	}
	for _, rule := range t.rules {
		if rule.Pattern.MatchString(path) {
			return rule.Cost
		}
	}
	return 1
}

// Upstream resolves the upstream name for a path.
func (t *RouteTable) Upstream(path string) (string, bool) {
	if t == nil {
		return "", false
	}
	for _, rule := range t.rules {
		if rule.Pattern.MatchString(path) && rule.Upstream != "" {
			return rule.Upstream, true
		}
	}
	if t.hasDefault {
		return DefaultUpstream, true
	}
	return "", false
}

// Label returns the metrics label for a path: the matched pattern, or the
// raw path when no rule matches.
func (t *RouteTable) Label(path string) string {
	if t == nil {
		return path
	}
	for _, rule := range t.rules {
		if rule.Pattern.MatchString(path) {
			return rule.Pattern.String()
		}
	}
	return path
}
