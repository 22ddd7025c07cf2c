package ir

// SchemaVersion is written into every GraphDef produced by this module.
const SchemaVersion = "1"

// GraphDef is the persisted form of a computation graph.
type GraphDef struct {
	Version string    `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes   []NodeDef `json:"nodes" yaml:"nodes"`
}

// NodeDef is one serialized node. Inputs keep the boundary encoding:
// "X", "X:k" for data inputs and "^X" for control inputs.
type NodeDef struct {
	Name       string             `json:"name" yaml:"name"`
	Op         string             `json:"op" yaml:"op"`
	Inputs     []string           `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Device     string             `json:"device,omitempty" yaml:"device,omitempty"`
	NumOutputs int                `json:"num_outputs,omitempty" yaml:"num_outputs,omitempty"`
	Attrs      map[string]AttrDef `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// AttrDef holds exactly one attribute value.
type AttrDef struct {
	Tensor *TensorDef `json:"tensor,omitempty" yaml:"tensor,omitempty"`
	Type   string     `json:"type,omitempty" yaml:"type,omitempty"`
	Shape  *ShapeDef  `json:"shape,omitempty" yaml:"shape,omitempty"`
	Int    *int64     `json:"i,omitempty" yaml:"i,omitempty"`
	Float  *float64   `json:"f,omitempty" yaml:"f,omitempty"`
	String *string    `json:"s,omitempty" yaml:"s,omitempty"`
	Bool   *bool      `json:"b,omitempty" yaml:"b,omitempty"`
	Ints   []int64    `json:"ints,omitempty" yaml:"ints,omitempty"`
	Shapes []ShapeDef `json:"shapes,omitempty" yaml:"shapes,omitempty"`
}

// ShapeDef is a partial shape; -1 marks an unknown dimension.
type ShapeDef struct {
	Dims        []int64 `json:"dims" yaml:"dims,flow"`
	UnknownRank bool    `json:"unknown_rank,omitempty" yaml:"unknown_rank,omitempty"`
}

// TensorDef stores literal values in a human-editable form. Floating point
// dtypes use Floats, integer dtypes use Ints and bool uses Bools.
type TensorDef struct {
	DType  string    `json:"dtype" yaml:"dtype"`
	Shape  []int64   `json:"shape" yaml:"shape,flow"`
	Floats []float64 `json:"floats,omitempty" yaml:"floats,omitempty,flow"`
	Ints   []int64   `json:"ints,omitempty" yaml:"ints,omitempty,flow"`
	Bools  []bool    `json:"bools,omitempty" yaml:"bools,omitempty,flow"`
}
