package graph

import (
	"fmt"
	"strconv"
	"strings"

	"constfold/internal/ops"
	"constfold/internal/tensor"
)

// Attribute keys shared by the pass and the reference collaborators.
const (
	AttrValue        = "value"
	AttrDType        = "dtype"
	AttrShape        = "shape"
	AttrOutType      = "out_type"
	AttrOutputShapes = "_output_shapes"
)

// Attr is a tagged attribute value. Exactly one field is expected to be set.
type Attr struct {
	Tensor *tensor.Tensor
	Type   tensor.DType
	Shape  *tensor.PartialShape
	Int    *int64
	Float  *float64
	String *string
	Bool   *bool
	Ints   []int64
	Shapes []tensor.PartialShape
}

func TensorAttr(t *tensor.Tensor) Attr { return Attr{Tensor: t} }
func TypeAttr(d tensor.DType) Attr    { return Attr{Type: d} }
func ShapeAttr(p tensor.PartialShape) Attr {
	return Attr{Shape: &p}
}
func IntAttr(v int64) Attr { return Attr{Int: &v} }

func (a Attr) clone() Attr {
	out := a
	out.Tensor = a.Tensor.Clone()
	if a.Shape != nil {
		s := clonePartial(*a.Shape)
		out.Shape = &s
	}
	if a.Int != nil {
		v := *a.Int
		out.Int = &v
	}
	if a.Float != nil {
		v := *a.Float
		out.Float = &v
	}
	if a.String != nil {
		v := *a.String
		out.String = &v
	}
	if a.Bool != nil {
		v := *a.Bool
		out.Bool = &v
	}
	if a.Ints != nil {
		out.Ints = append([]int64(nil), a.Ints...)
	}
	if a.Shapes != nil {
		out.Shapes = make([]tensor.PartialShape, len(a.Shapes))
		for i, s := range a.Shapes {
			out.Shapes[i] = clonePartial(s)
		}
	}
	return out
}

func clonePartial(p tensor.PartialShape) tensor.PartialShape {
	return tensor.PartialShape{Dims: append([]int64(nil), p.Dims...), UnknownRank: p.UnknownRank}
}

// Node is one operation in the graph. Inputs use the boundary encoding:
// "X" or "X:k" for data inputs, "^X" for control inputs.
type Node struct {
	Name       string
	Op         string
	Inputs     []string
	Attrs      map[string]Attr
	NumOutputs int
	Device     string
}

// Outputs returns the declared output count, falling back to the op table.
func (n *Node) Outputs() int {
	if n.NumOutputs > 0 {
		return n.NumOutputs
	}
	return ops.DefaultOutputs(n.Op)
}

// DataInputs returns the data inputs in order.
func (n *Node) DataInputs() []Output {
	var out []Output
	for _, raw := range n.Inputs {
		in := ParseInput(raw)
		if !in.Control {
			out = append(out, in.Output)
		}
	}
	return out
}

// ControlInputs returns the names of the control dependency sources in order.
func (n *Node) ControlInputs() []string {
	var out []string
	for _, raw := range n.Inputs {
		in := ParseInput(raw)
		if in.Control {
			out = append(out, in.Node)
		}
	}
	return out
}

// TensorAttr returns the tensor stored under key.
func (n *Node) TensorAttr(key string) (*tensor.Tensor, bool) {
	a, ok := n.Attrs[key]
	if !ok || a.Tensor == nil {
		return nil, false
	}
	return a.Tensor, true
}

// TypeAttr returns the dtype stored under key, or def.
func (n *Node) TypeAttr(key string, def tensor.DType) tensor.DType {
	if a, ok := n.Attrs[key]; ok && a.Type != tensor.Invalid {
		return a.Type
	}
	return def
}

// ShapeAttr returns the partial shape stored under key.
func (n *Node) ShapeAttr(key string) (tensor.PartialShape, bool) {
	a, ok := n.Attrs[key]
	if !ok || a.Shape == nil {
		return tensor.PartialShape{}, false
	}
	return *a.Shape, true
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	c := &Node{
		Name:       n.Name,
		Op:         n.Op,
		Inputs:     append([]string(nil), n.Inputs...),
		NumOutputs: n.NumOutputs,
		Device:     n.Device,
	}
	if n.Attrs != nil {
		c.Attrs = make(map[string]Attr, len(n.Attrs))
		for k, v := range n.Attrs {
			c.Attrs[k] = v.clone()
		}
	}
	return c
}

// Output addresses one output slot of a node.
type Output struct {
	Node string
	Slot int
}

// String renders the canonical form: "X" for slot 0, "X:k" otherwise.
func (o Output) String() string {
	if o.Slot == 0 {
		return o.Node
	}
	return o.Node + ":" + strconv.Itoa(o.Slot)
}

// Input is one parsed entry of Node.Inputs.
type Input struct {
	Output
	Control bool
}

func (in Input) String() string {
	if in.Control {
		return ControlInput(in.Node)
	}
	return in.Output.String()
}

// ParseInput decodes "X", "X:k" or "^X".
func ParseInput(raw string) Input {
	if strings.HasPrefix(raw, "^") {
		return Input{Output: Output{Node: raw[1:]}, Control: true}
	}
	if i := strings.LastIndexByte(raw, ':'); i > 0 {
		if slot, err := strconv.Atoi(raw[i+1:]); err == nil && slot >= 0 {
			return Input{Output: Output{Node: raw[:i], Slot: slot}}
		}
	}
	return Input{Output: Output{Node: raw}}
}

// ParseOutput decodes a fetch entry such as "d" or "b:1".
func ParseOutput(raw string) (Output, error) {
	in := ParseInput(raw)
	if in.Control || in.Node == "" {
		return Output{}, fmt.Errorf("invalid output reference %q", raw)
	}
	return in.Output, nil
}

// ControlInput encodes a control dependency on name.
func ControlInput(name string) string { return "^" + name }

// Consumer is one input edge that references a given producer.
type Consumer struct {
	Node    string
	Index   int
	Slot    int
	Control bool
}
