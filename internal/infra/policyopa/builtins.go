package policyopa

import "github.com/open-policy-agent/opa/ast"

// Control policies are pure functions of their input. Anything that reaches
// the network, the clock or the environment is left out.
var allowedBuiltins = map[string]struct{}{
	"assign":                {},
	"eq":                    {},
	"equal":                 {},
	"neq":                   {},
	"gt":                    {},
	"gte":                   {},
	"lt":                    {},
	"lte":                   {},
	"plus":                  {},
	"minus":                 {},
	"mul":                   {},
	"div":                   {},
	"abs":                   {},
	"count":                 {},
	"sum":                   {},
	"max":                   {},
	"min":                   {},
	"sort":                  {},
	"concat":                {},
	"contains":              {},
	"startswith":            {},
	"endswith":              {},
	"lower":                 {},
	"upper":                 {},
	"split":                 {},
	"sprintf":               {},
	"trim":                  {},
	"object.get":            {},
	"internal.member_2":     {},
	"internal.member_3":     {},
	"time.parse_rfc3339_ns": {},
	"time.add_date":         {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
