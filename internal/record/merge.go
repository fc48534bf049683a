package record

// Merge applies patch on top of existing and returns a new value; neither
// input is modified.
//
//   - Object into Object merges field by field. Fields missing from the patch
//     survive, new fields are added, and an explicit null replaces the field.
//   - Array of objects into array of objects merges element by element keyed
//     by objectId. Matched elements are merged in place, unmatched ones are
//     appended in patch order, and elements without an objectId are always
//     appended.
//   - Any other pairing (scalars, arrays holding scalars, mismatched kinds)
//     takes the patch value.
func Merge(existing, patch Value) Value {
	switch p := patch.(type) {
	case Object:
		if e, ok := existing.(Object); ok {
			return mergeObjects(e, p)
		}
	case Array:
		if e, ok := existing.(Array); ok && isEntitySequence(e) && isEntitySequence(p) {
			return mergeEntities(e, p)
		}
	}
	return Clone(patch)
}

func mergeObjects(existing, patch Object) Object {
	out := make(Object, len(existing)+len(patch))
	for k, v := range existing {
		out[k] = Clone(v)
	}
	for k, pv := range patch {
		ev, ok := out[k]
		if !ok {
			out[k] = Clone(pv)
			continue
		}
		out[k] = Merge(ev, pv)
	}
	return out
}

func mergeEntities(existing, patch Array) Array {
	out := make(Array, 0, len(existing)+len(patch))
	pos := make(map[string]int, len(existing))
	for _, e := range existing {
		if id := ID(e); id != "" {
			if _, dup := pos[id]; !dup {
				pos[id] = len(out)
			}
		}
		out = append(out, Clone(e))
	}
	for _, p := range patch {
		id := ID(p)
		if i, ok := pos[id]; ok && id != "" {
			out[i] = Merge(out[i], p)
			continue
		}
		if id != "" {
			pos[id] = len(out)
		}
		out = append(out, Clone(p))
	}
	return out
}

// isEntitySequence reports whether every element is an Object. Empty arrays
// qualify, so a patch can add the first entity to an empty sequence.
func isEntitySequence(a Array) bool {
	for _, e := range a {
		if _, ok := e.(Object); !ok {
			return false
		}
	}
	return true
}
