package etl

import (
	"fmt"
	"strings"

	"collector/internal/document"
)

// ── Flatten ────────────────────────────────────────────────
// Flatten walks a parent/children tree depth-first and emits one record per
// node, without its children field and with parent_<idField> pointing at the
// parent's id (null at the root).

// Flatten linearizes the tree found at spec.ListPath. An object at ListPath is
// treated as a single root; an absent ListPath yields no records.
func Flatten(doc document.Value, spec FlattenSpec) ([]document.Value, error) {
	if spec.ChildrenField == "" || spec.IDField == "" {
		return nil, fmt.Errorf("%w: flatten requires childrenField and idField", ErrConfiguration)
	}

	root, ok := document.Resolve(doc, spec.ListPath)
	if !ok {
		return []document.Value{}, nil
	}

	var roots []document.Value
	switch root.Kind() {
	case document.Array:
		roots = root.Items()
	case document.Object:
		roots = []document.Value{root}
	default:
		return nil, fmt.Errorf("%w: flatten list %q is a %s", ErrConfiguration, spec.ListPath, root.Kind())
	}

	f := flattener{spec: spec, parentKey: "parent_" + spec.IDField, out: []document.Value{}}
	f.walk(roots, document.NullValue())
	return f.out, nil
}

type flattener struct {
	spec      FlattenSpec
	parentKey string
	out       []document.Value
}

func (f *flattener) walk(nodes []document.Value, parentID document.Value) {
	for _, n := range nodes {
		if n.Kind() != document.Object {
			continue
		}
		rec := n.ShallowCopy()
		rec.Delete(f.spec.ChildrenField)
		rec.Set(f.parentKey, parentID)
		f.out = append(f.out, rec)

		children, ok := n.Get(f.spec.ChildrenField)
		if !ok || children.Kind() != document.Array {
			continue
		}
		id, ok := n.Get(f.spec.IDField)
		if !ok {
			id = document.NullValue()
		}
		f.walk(children.Items(), id)
	}
}

// placeRecords puts flat records back into doc: at ListPath when it is a
// plain dotted path, otherwise as the new root array.
func placeRecords(doc document.Value, listPath string, records []document.Value) document.Value {
	list := document.ArrayValue(records...)
	if listPath == "" || strings.ContainsRune(listPath, document.SepArray) {
		return list
	}
	return replaceAt(doc, strings.Split(listPath, "."), list)
}

// replaceAt returns a copy of doc with path set to v. Objects along the path
// are copied; doc is not modified.
func replaceAt(doc document.Value, path []string, v document.Value) document.Value {
	if len(path) == 0 {
		return v
	}
	obj := document.ObjectValue()
	if doc.Kind() == document.Object {
		obj = doc.ShallowCopy()
	}
	child, _ := obj.Get(path[0])
	obj.Set(path[0], replaceAt(child, path[1:], v))
	return obj
}
