package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v2"
)

// LoadResult contains a loaded override layer and metadata about the load.
type LoadResult struct {
	Layer    Layer
	Files    []string
	Warnings []string
}

// LoadFile loads an attribute file, choosing the decoder by extension.
// Files without a known extension are tried as HCL, then JSON.
func LoadFile(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attribute file: %w", err)
	}

	var layer Layer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hcl":
		layer, err = LoadHCL(data, path)
	case ".json":
		layer, err = LoadJSON(data)
	case ".yaml", ".yml":
		layer, err = LoadYAML(data)
	default:
		layer, err = LoadHCL(data, path)
		if err != nil {
			if jl, jerr := LoadJSON(data); jerr == nil {
				layer, err = jl, nil
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &LoadResult{Layer: layer, Files: []string{path}}, nil
}

// LoadFiles loads several attribute files; later files override earlier ones.
func LoadFiles(paths ...string) (*LoadResult, error) {
	merged := &LoadResult{Layer: Layer{}}
	for _, p := range paths {
		r, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		for _, k := range r.Layer.Keys() {
			if _, dup := merged.Layer[k]; dup {
				merged.Warnings = append(merged.Warnings, fmt.Sprintf("%s overrides %s from an earlier file", p, k))
			}
		}
		merged.Layer = merged.Layer.Merge(r.Layer)
		merged.Files = append(merged.Files, p)
	}
	return merged, nil
}

// LoadHCL decodes an HCL attribute document. Blocks become path segments
// (labels included); attributes are evaluated without variables or functions.
func LoadHCL(data []byte, filename string) (Layer, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("unexpected HCL body type %T", file.Body)
	}

	out := Layer{}
	if diags := flattenHCLBody("", body, out); diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}
	return out, nil
}

func flattenHCLBody(prefix string, body *hclsyntax.Body, out Layer) hcl.Diagnostics {
	var diags hcl.Diagnostics

	names := make([]string, 0, len(body.Attributes))
	for name := range body.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		attr := body.Attributes[name]
		val, valDiags := attr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if valDiags.HasErrors() {
			continue
		}
		if err := flattenCty(JoinPath(prefix, name), val, out); err != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unsupported attribute value",
				Detail:   err.Error(),
				Subject:  attr.SrcRange.Ptr(),
			})
		}
	}

	for _, block := range body.Blocks {
		path := JoinPath(append([]string{prefix, block.Type}, block.Labels...)...)
		diags = append(diags, flattenHCLBody(path, block.Body, out)...)
	}
	return diags
}

func flattenCty(path string, v cty.Value, out Layer) error {
	if v.IsNull() {
		out[path] = nil
		return nil
	}
	if !v.IsWhollyKnown() {
		return fmt.Errorf("%s: value is not known", path)
	}

	ty := v.Type()
	switch {
	case ty.IsObjectType() || ty.IsMapType():
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			if err := flattenCty(JoinPath(path, k.AsString()), ev, out); err != nil {
				return err
			}
		}
		return nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		seq := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			s, err := ctyScalar(path, ev)
			if err != nil {
				return err
			}
			seq = append(seq, s)
		}
		out[path] = seq
		return nil
	}

	s, err := ctyScalar(path, v)
	if err != nil {
		return err
	}
	out[path] = s
	return nil
}

func ctyScalar(path string, v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		return v.True(), nil
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			i, _ := bf.Int64()
			return int(i), nil
		}
		f, _ := bf.Float64()
		return f, nil
	}
	return nil, fmt.Errorf("%s: unsupported value type %s", path, v.Type().FriendlyName())
}

// LoadJSON decodes a JSON attribute document.
func LoadJSON(data []byte) (Layer, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("JSON decode error: %w", err)
	}

	out := Layer{}
	if err := flattenMap("", raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadYAML decodes a YAML attribute document.
func LoadYAML(data []byte) (Layer, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("YAML decode error: %w", err)
	}

	out := Layer{}
	if err := flattenMap("", raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenMap(prefix string, m map[string]any, out Layer) error {
	for k, v := range m {
		if err := flattenAny(JoinPath(prefix, k), v, out); err != nil {
			return err
		}
	}
	return nil
}

func flattenAny(path string, v any, out Layer) error {
	switch x := v.(type) {
	case map[string]any:
		return flattenMap(path, x, out)
	case map[any]any:
		// yaml.v2 decodes nested mappings with interface keys.
		for k, ev := range x {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprint(k)
			}
			if err := flattenAny(JoinPath(path, ks), ev, out); err != nil {
				return err
			}
		}
		return nil
	}
	return out.Set(path, v)
}
