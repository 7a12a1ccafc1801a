package transform

import (
	"strings"

	"github.com/spf13/cast"
)

// Publication states.
const (
	Trashed     = -2
	Unpublished = 0
	Published   = 1
	Archived    = 2
)

// Undefined is exposed for stored codes outside of a transform's domain.
const Undefined = "undefined"

var stateNames = map[int]string{
	Trashed:     "trashed",
	Unpublished: "unpublished",
	Published:   "published",
	Archived:    "archived",
}

var stateCodes = map[string]int{
	"trashed":     Trashed,
	"unpublished": Unpublished,
	"published":   Published,
	"archived":    Archived,
}

// State maps integer publication codes to their names.
type State struct{}

// ToExternal implements Transform.
func (State) ToExternal(v interface{}) interface{} {
	if v == nil {
		return Undefined
	}
	code, err := cast.ToIntE(v)
	if err != nil {
		return Undefined
	}
	name, ok := stateNames[code]
	if !ok {
		return Undefined
	}
	return name
}

// ToInternal implements Transform. Unknown names are stored as Unpublished.
func (State) ToInternal(v interface{}) interface{} {
	code, ok := stateCodes[strings.TrimSpace(cast.ToString(v))]
	if !ok {
		return Unpublished
	}
	return code
}
