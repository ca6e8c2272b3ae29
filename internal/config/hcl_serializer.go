package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// node is an intermediate nesting of a flat layer.
type node struct {
	attrs    map[string]any
	children map[string]*node
}

func newNode() *node {
	return &node{attrs: map[string]any{}, children: map[string]*node{}}
}

// MarshalHCL renders a layer as nested HCL blocks, one block per path
// segment. The output loads back into an equal layer with LoadHCL.
func MarshalHCL(l Layer) ([]byte, error) {
	root := newNode()
	for _, key := range l.Keys() {
		parts := strings.Split(key, ".")
		n := root
		for _, p := range parts[:len(parts)-1] {
			if _, leaf := n.attrs[p]; leaf {
				return nil, fmt.Errorf("attribute %s: %s is both a value and a block", key, p)
			}
			child, ok := n.children[p]
			if !ok {
				child = newNode()
				n.children[p] = child
			}
			n = child
		}
		last := parts[len(parts)-1]
		if _, block := n.children[last]; block {
			return nil, fmt.Errorf("attribute %s: %s is both a value and a block", key, last)
		}
		n.attrs[last] = l[key]
	}

	f := hclwrite.NewEmptyFile()
	if err := writeNode(f.Body(), root); err != nil {
		return nil, err
	}
	return hclwrite.Format(f.Bytes()), nil
}

func writeNode(body *hclwrite.Body, n *node) error {
	names := make([]string, 0, len(n.attrs))
	for name := range n.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, err := toCty(n.attrs[name])
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		body.SetAttributeValue(name, v)
	}

	blocks := make([]string, 0, len(n.children))
	for name := range n.children {
		blocks = append(blocks, name)
	}
	sort.Strings(blocks)
	for _, name := range blocks {
		block := body.AppendNewBlock(name, nil)
		if err := writeNode(block.Body(), n.children[name]); err != nil {
			return fmt.Errorf("%s.%w", name, err)
		}
	}
	return nil
}

func toCty(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(x), nil
	case bool:
		return cty.BoolVal(x), nil
	case int:
		return cty.NumberIntVal(int64(x)), nil
	case float64:
		return cty.NumberFloatVal(x), nil
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(x))
		for i, e := range x {
			ev, err := toCty(e)
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = ev
		}
		return cty.TupleVal(elems), nil
	}
	return cty.NilVal, fmt.Errorf("unsupported value of type %T", v)
}
