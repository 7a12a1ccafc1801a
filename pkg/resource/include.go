package resource

// IncludeMap lists the external field names that may appear in embedded
// resources. It is independent of the primary Map and follows the same
// subsetting and sharing rules.
type IncludeMap struct {
	fields []string
}

// NewIncludeMap returns an IncludeMap holding fields in order, without duplicates.
func NewIncludeMap(fields ...string) *IncludeMap {
	im := &IncludeMap{}
	seen := make(nameSet)
	for _, f := range fields {
		if f == "" || seen.has(f) {
			continue
		}
		seen.add(f)
		im.fields = append(im.fields, f)
	}
	return im
}

// ToArray returns the included field names.
func (im *IncludeMap) ToArray() []string {
	out := make([]string, len(im.fields))
	copy(out, im.fields)
	return out
}

// IsIncluded returns true if name is included.
func (im *IncludeMap) IsIncluded(name string) bool {
	for _, f := range im.fields {
		if f == name {
			return true
		}
	}
	return false
}

// Delete removes name.
func (im *IncludeMap) Delete(name string) {
	for i, f := range im.fields {
		if f == name {
			im.fields = append(im.fields[:i:i], im.fields[i+1:]...)
			return
		}
	}
}

// Clone returns an independent copy of im.
func (im *IncludeMap) Clone() *IncludeMap { return &IncludeMap{fields: im.ToArray()} }

// Subset returns a clone holding only names whose unqualified form is in fields.
func (im *IncludeMap) Subset(fields []string) *IncludeMap {
	c := im.Clone()
	keep := newNameSet(fields)
	for _, f := range im.fields {
		if !keep.has(Unqualified(f)) {
			c.Delete(f)
		}
	}
	return c
}
