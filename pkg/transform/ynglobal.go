package transform

import (
	"strings"

	"github.com/spf13/cast"
)

// YNGlobal maps a tri-state option ("" inherits the global setting, 0 is no,
// 1 is yes) to "global", "no" and "yes".
type YNGlobal struct{}

// ToExternal implements Transform.
func (YNGlobal) ToExternal(v interface{}) interface{} {
	if v == nil {
		return "global"
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return "global"
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return Undefined
	}
	switch n {
	case 0:
		return "no"
	case 1:
		return "yes"
	default:
		return Undefined
	}
}

// ToInternal implements Transform.
func (YNGlobal) ToInternal(v interface{}) interface{} {
	switch strings.TrimSpace(cast.ToString(v)) {
	case "no":
		return 0
	case "yes":
		return 1
	default:
		return ""
	}
}
