// Package trigger matches inbound webhook requests against configured
// rules and runs their actions off the request path.
package trigger

import (
	"encoding/json"
	"fmt"
	"regexp"

	"relaybot/internal/domain"
)

// varPattern matches {{source}} and {{source.field}} placeholders.
var varPattern = regexp.MustCompile(`\{\{(\w+)(?:\.(\w+))?\}\}`)

// Expand substitutes request data into an action template string.
// Unresolvable placeholders stay verbatim so a misconfigured rule is
// visible in its output rather than silently blanked.
func Expand(tpl string, rc domain.RequestContext) string {
	return varPattern.ReplaceAllStringFunc(tpl, func(match string) string {
		groups := varPattern.FindStringSubmatch(match)
		source, field := groups[1], groups[2]

		if field == "" {
			v, ok := rc.Source(source)
			if !ok {
				return match
			}
			return renderValue(v)
		}

		v, ok := rc.Field(source, field)
		if !ok {
			return match
		}
		return fmt.Sprint(v)
	})
}

// ExpandVars expands every value of an action's vars map.
func ExpandVars(vars map[string]string, rc domain.RequestContext) map[string]string {
	if len(vars) == 0 {
		return nil
	}
	out := make(map[string]string, len(vars))
	for k, v := range vars {
		out[k] = Expand(v, rc)
	}
	return out
}

// renderValue turns a whole source into text. Strings pass through;
// structured values render as indented JSON so an agent prompt stays
// readable.
func renderValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
