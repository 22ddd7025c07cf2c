package graph

import (
	"fmt"
	"sort"

	"constfold/internal/ir"
	"constfold/internal/tensor"
)

// FromDef converts the serialized form into a Graph. Only structural
// problems that prevent building the arena (empty or duplicate names,
// undecodable attributes) are reported here; call Validate for the rest.
func FromDef(def *ir.GraphDef) (*Graph, error) {
	g := NewGraph()
	if def == nil {
		return g, nil
	}
	for _, nd := range def.Nodes {
		n := &Node{
			Name:       nd.Name,
			Op:         nd.Op,
			Inputs:     append([]string(nil), nd.Inputs...),
			NumOutputs: nd.NumOutputs,
			Device:     nd.Device,
		}
		if len(nd.Attrs) > 0 {
			n.Attrs = make(map[string]Attr, len(nd.Attrs))
			for key, ad := range nd.Attrs {
				a, err := attrFromDef(ad)
				if err != nil {
					return nil, invalidf("node %q attribute %q: %v", nd.Name, key, err)
				}
				n.Attrs[key] = a
			}
		}
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ToDef converts g into its serialized form, preserving node order.
func ToDef(g *Graph) *ir.GraphDef {
	def := &ir.GraphDef{Version: ir.SchemaVersion, Nodes: make([]ir.NodeDef, 0, g.Len())}
	for _, n := range g.nodes {
		nd := ir.NodeDef{
			Name:       n.Name,
			Op:         n.Op,
			Inputs:     append([]string(nil), n.Inputs...),
			Device:     n.Device,
			NumOutputs: n.NumOutputs,
		}
		if len(n.Attrs) > 0 {
			nd.Attrs = make(map[string]ir.AttrDef, len(n.Attrs))
			keys := make([]string, 0, len(n.Attrs))
			for k := range n.Attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				nd.Attrs[k] = attrToDef(n.Attrs[k])
			}
		}
		def.Nodes = append(def.Nodes, nd)
	}
	return def
}

func attrFromDef(ad ir.AttrDef) (Attr, error) {
	a := Attr{
		Int:    ad.Int,
		Float:  ad.Float,
		String: ad.String,
		Bool:   ad.Bool,
		Ints:   ad.Ints,
	}
	if ad.Tensor != nil {
		t, err := ad.Tensor.ToTensor()
		if err != nil {
			return Attr{}, err
		}
		a.Tensor = t
	}
	if ad.Type != "" {
		d, err := tensor.ParseDType(ad.Type)
		if err != nil {
			return Attr{}, err
		}
		a.Type = d
	}
	if ad.Shape != nil {
		s := ad.Shape.ToShape()
		a.Shape = &s
	}
	for _, s := range ad.Shapes {
		a.Shapes = append(a.Shapes, s.ToShape())
	}
	return a, nil
}

func attrToDef(a Attr) ir.AttrDef {
	ad := ir.AttrDef{
		Tensor: ir.FromTensor(a.Tensor),
		Int:    a.Int,
		Float:  a.Float,
		String: a.String,
		Bool:   a.Bool,
		Ints:   a.Ints,
	}
	if a.Type != tensor.Invalid {
		ad.Type = a.Type.String()
	}
	if a.Shape != nil {
		s := ir.FromShape(*a.Shape)
		ad.Shape = &s
	}
	for _, s := range a.Shapes {
		ad.Shapes = append(ad.Shapes, ir.FromShape(s))
	}
	return ad
}

// Describe renders a one-line summary of n, used in logs and CLI output.
func Describe(n *Node) string {
	if v, ok := n.TensorAttr(AttrValue); ok {
		return fmt.Sprintf("%s = %s%v %s", n.Name, n.Op, n.Inputs, v)
	}
	return fmt.Sprintf("%s = %s%v", n.Name, n.Op, n.Inputs)
}
