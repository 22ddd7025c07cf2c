// Package ops is the closed table of operation kinds known to the folding
// pass. Every decision about whether an op may be evaluated at rewrite time
// is a lookup here; kinds missing from the table are treated as opaque.
package ops

// Class groups operation kinds by how the folding pass may treat them.
type Class int

const (
	Unknown Class = iota
	// Literal ops embed their value in the node ("value" attribute).
	Literal
	// Pure ops are stateless functions of their data inputs.
	Pure
	// ShapeQuery ops depend only on the static shape of their input.
	ShapeQuery
	// Placeholder ops are fed at run time, even when they carry a default.
	Placeholder
	Stateful
	IO
	ControlFlow
)

var classNames = map[Class]string{
	Unknown:     "unknown",
	Literal:     "literal",
	Pure:        "pure",
	ShapeQuery:  "shape_query",
	Placeholder: "placeholder",
	Stateful:    "stateful",
	IO:          "io",
	ControlFlow: "control_flow",
}

func (c Class) String() string { return classNames[c] }

// Def describes one operation kind.
type Def struct {
	Kind       string
	Class      Class
	NumOutputs int
}

const (
	Const                  = "Const"
	HostConst              = "HostConst"
	Identity               = "Identity"
	AddN                   = "AddN"
	Add                    = "Add"
	AddV2                  = "AddV2"
	Sub                    = "Sub"
	Mul                    = "Mul"
	RealDiv                = "RealDiv"
	FloorDiv               = "FloorDiv"
	Neg                    = "Neg"
	Square                 = "Square"
	Maximum                = "Maximum"
	Minimum                = "Minimum"
	Cast                   = "Cast"
	Reshape                = "Reshape"
	ZerosLike              = "ZerosLike"
	OnesLike               = "OnesLike"
	Fill                   = "Fill"
	Unique                 = "Unique"
	Shape                  = "Shape"
	Rank                   = "Rank"
	Size                   = "Size"
	PlaceholderOp          = "Placeholder"
	PlaceholderWithDefault = "PlaceholderWithDefault"
	Variable               = "Variable"
	VariableV2             = "VariableV2"
	VarHandleOp            = "VarHandleOp"
)

var table = map[string]Def{}

func register(class Class, outputs int, kinds ...string) {
	for _, k := range kinds {
		table[k] = Def{Kind: k, Class: class, NumOutputs: outputs}
	}
}

func init() {
	register(Literal, 1, Const, HostConst)
	register(Pure, 1,
		Identity, AddN, Add, AddV2, Sub, Mul, RealDiv, FloorDiv, Neg, Square,
		Maximum, Minimum, Cast, Reshape, ZerosLike, OnesLike, Fill)
	register(Pure, 2, Unique)
	register(ShapeQuery, 1, Shape, Rank, Size)
	register(Placeholder, 1, PlaceholderOp, PlaceholderWithDefault)
	register(Stateful, 1,
		Variable, VariableV2, VarHandleOp, "ReadVariableOp", "Assign", "AssignAdd",
		"RandomUniform", "RandomStandardNormal", "TruncatedNormal")
	register(IO, 1, "Print", "ReadFile", "Recv", "Restore", "RestoreV2")
	register(IO, 0, "Send", "WriteFile", "Save", "SaveV2")
	register(ControlFlow, 1, "Enter", "Exit", "NextIteration", "LoopCond")
	register(ControlFlow, 2, "Merge", "Switch")
	register(ControlFlow, 0, "NoOp")
}

// Lookup returns the definition of kind.
func Lookup(kind string) (Def, bool) {
	d, ok := table[kind]
	return d, ok
}

// ClassOf returns Unknown for kinds missing from the table.
func ClassOf(kind string) Class {
	return table[kind].Class
}

// IsLiteral reports whether kind embeds its value.
func IsLiteral(kind string) bool { return ClassOf(kind) == Literal }

// IsFoldableKind reports whether nodes of this kind may be evaluated at
// rewrite time, provided their data inputs are constant.
func IsFoldableKind(kind string) bool {
	c := ClassOf(kind)
	return c == Pure || c == ShapeQuery
}

// IsShapeQuery reports whether kind is Shape, Rank or Size.
func IsShapeQuery(kind string) bool { return ClassOf(kind) == ShapeQuery }

// DefaultOutputs is the declared output count of kind, or 1 when unknown.
func DefaultOutputs(kind string) int {
	if d, ok := table[kind]; ok {
		return d.NumOutputs
	}
	return 1
}
