package tensor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/x448/float16"
)

// DType identifies the element type of a Tensor.
type DType int

const (
	Invalid DType = iota
	Float16
	Float32
	Float64
	Int32
	Int64
	Bool
)

var dtypeNames = map[DType]string{
	Float16: "float16",
	Float32: "float32",
	Float64: "float64",
	Int32:   "int32",
	Int64:   "int64",
	Bool:    "bool",
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return "invalid"
}

// Size returns the number of bytes used by one element.
func (d DType) Size() int {
	switch d {
	case Float16:
		return 2
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Bool:
		return 1
	}
	return 0
}

func (d DType) IsFloat() bool   { return d == Float16 || d == Float32 || d == Float64 }
func (d DType) IsInteger() bool { return d == Int32 || d == Int64 }

// ParseDType accepts the lowercase names produced by DType.String, plus the
// DT_* spellings found in exported graphs.
func ParseDType(s string) (DType, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.ToUpper(s), "DT_"))
	switch key {
	case "half":
		key = "float16"
	case "float":
		key = "float32"
	case "double":
		key = "float64"
	}
	for d, name := range dtypeNames {
		if name == key {
			return d, nil
		}
	}
	return Invalid, fmt.Errorf("unknown dtype %q", s)
}

// Tensor is a dense literal value: element type, dimensions and the
// little-endian encoding of its elements in row-major order.
type Tensor struct {
	DType DType
	Shape []int64
	Data  []byte
}

// ErrShape reports a shape with a negative dimension or an element count
// that does not fit in an int64.
var ErrShape = errors.New("invalid shape")

// ElementCount returns the product of the dimensions (1 for a scalar),
// rejecting negative dimensions and products that overflow int64.
func ElementCount(shape []int64) (int64, error) {
	n := int64(1)
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: %v has a negative dimension", ErrShape, shape)
		}
		if d != 0 && n > math.MaxInt64/d {
			return 0, fmt.Errorf("%w: element count of %v overflows int64", ErrShape, shape)
		}
		n *= d
	}
	return n, nil
}

// NumElements returns the product of the dimensions (1 for a scalar). The
// shape must already be known valid; use ElementCount for untrusted shapes.
func NumElements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

func (t *Tensor) NumElements() int64 { return NumElements(t.Shape) }

func (t *Tensor) ByteSize() int { return len(t.Data) }

func (t *Tensor) Rank() int { return len(t.Shape) }

// Equal reports whether both tensors have identical dtype, shape and bytes.
func (t *Tensor) Equal(o *Tensor) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.DType != o.DType || len(t.Shape) != len(o.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != o.Shape[i] {
			return false
		}
	}
	return bytes.Equal(t.Data, o.Data)
}

// Validate checks that Data holds exactly NumElements values of DType.
func (t *Tensor) Validate() error {
	if t.DType.Size() == 0 {
		return fmt.Errorf("tensor has invalid dtype")
	}
	n, err := ElementCount(t.Shape)
	if err != nil {
		return err
	}
	size := int64(t.DType.Size())
	if n > math.MaxInt64/size {
		return fmt.Errorf("%w: byte size of %s%v overflows int64", ErrShape, t.DType, t.Shape)
	}
	if want := n * size; int64(len(t.Data)) != want {
		return fmt.Errorf("tensor %s%v holds %d bytes, want %d", t.DType, t.Shape, len(t.Data), want)
	}
	return nil
}

func (t *Tensor) String() string {
	if t == nil {
		return "<nil>"
	}
	var vals string
	switch {
	case t.DType.IsFloat():
		vals = fmt.Sprint(t.Float64s())
	case t.DType.IsInteger():
		vals = fmt.Sprint(t.Int64s())
	case t.DType == Bool:
		vals = fmt.Sprint(t.Bools())
	}
	return fmt.Sprintf("%s%v%s", t.DType, t.Shape, vals)
}

func cloneShape(shape []int64) []int64 {
	out := make([]int64, len(shape))
	copy(out, shape)
	return out
}

func checkCount(shape []int64, n int) {
	if NumElements(shape) != int64(n) {
		panic(fmt.Sprintf("tensor: %d values do not fill shape %v", n, shape))
	}
}

func FromFloat32s(shape []int64, vals []float32) *Tensor {
	checkCount(shape, len(vals))
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return &Tensor{DType: Float32, Shape: cloneShape(shape), Data: data}
}

func FromFloat64s(shape []int64, vals []float64) *Tensor {
	checkCount(shape, len(vals))
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return &Tensor{DType: Float64, Shape: cloneShape(shape), Data: data}
}

// FromFloat16s rounds each value to the nearest half-precision float.
func FromFloat16s(shape []int64, vals []float32) *Tensor {
	checkCount(shape, len(vals))
	data := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(data[2*i:], float16.Fromfloat32(v).Bits())
	}
	return &Tensor{DType: Float16, Shape: cloneShape(shape), Data: data}
}

func FromInt32s(shape []int64, vals []int32) *Tensor {
	checkCount(shape, len(vals))
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(v))
	}
	return &Tensor{DType: Int32, Shape: cloneShape(shape), Data: data}
}

func FromInt64s(shape []int64, vals []int64) *Tensor {
	checkCount(shape, len(vals))
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(data[8*i:], uint64(v))
	}
	return &Tensor{DType: Int64, Shape: cloneShape(shape), Data: data}
}

func FromBools(shape []int64, vals []bool) *Tensor {
	checkCount(shape, len(vals))
	data := make([]byte, len(vals))
	for i, v := range vals {
		if v {
			data[i] = 1
		}
	}
	return &Tensor{DType: Bool, Shape: cloneShape(shape), Data: data}
}

func ScalarInt32(v int32) *Tensor     { return FromInt32s(nil, []int32{v}) }
func ScalarInt64(v int64) *Tensor     { return FromInt64s(nil, []int64{v}) }
func ScalarFloat32(v float32) *Tensor { return FromFloat32s(nil, []float32{v}) }

// FromFloat64Values encodes vals as dtype, converting each element.
// Integer dtypes truncate toward zero and wrap on overflow.
func FromFloat64Values(dtype DType, shape []int64, vals []float64) (*Tensor, error) {
	switch dtype {
	case Float16:
		f := make([]float32, len(vals))
		for i, v := range vals {
			f[i] = float32(v)
		}
		return FromFloat16s(shape, f), nil
	case Float32:
		f := make([]float32, len(vals))
		for i, v := range vals {
			f[i] = float32(v)
		}
		return FromFloat32s(shape, f), nil
	case Float64:
		return FromFloat64s(shape, vals), nil
	case Int32, Int64:
		ints := make([]int64, len(vals))
		for i, v := range vals {
			ints[i] = int64(v)
		}
		return FromInt64Values(dtype, shape, ints)
	case Bool:
		b := make([]bool, len(vals))
		for i, v := range vals {
			b[i] = v != 0
		}
		return FromBools(shape, b), nil
	}
	return nil, fmt.Errorf("cannot encode values as %s", dtype)
}

// FromInt64Values encodes vals as dtype. Int32 wraps on overflow.
func FromInt64Values(dtype DType, shape []int64, vals []int64) (*Tensor, error) {
	switch dtype {
	case Int32:
		i32 := make([]int32, len(vals))
		for i, v := range vals {
			i32[i] = int32(v)
		}
		return FromInt32s(shape, i32), nil
	case Int64:
		return FromInt64s(shape, vals), nil
	case Float16, Float32, Float64, Bool:
		f := make([]float64, len(vals))
		for i, v := range vals {
			f[i] = float64(v)
		}
		return FromFloat64Values(dtype, shape, f)
	}
	return nil, fmt.Errorf("cannot encode values as %s", dtype)
}

// Float64s decodes every element as float64, whatever the dtype.
func (t *Tensor) Float64s() []float64 {
	n := int(t.NumElements())
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		switch t.DType {
		case Float16:
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(t.Data[2*i:])).Float32())
		case Float32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(t.Data[4*i:])))
		case Float64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(t.Data[8*i:]))
		case Int32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(t.Data[4*i:])))
		case Int64:
			out[i] = float64(int64(binary.LittleEndian.Uint64(t.Data[8*i:])))
		case Bool:
			if t.Data[i] != 0 {
				out[i] = 1
			}
		}
	}
	return out
}

// Int64s decodes every element as int64; floats truncate toward zero.
func (t *Tensor) Int64s() []int64 {
	n := int(t.NumElements())
	out := make([]int64, n)
	switch t.DType {
	case Int32:
		for i := 0; i < n; i++ {
			out[i] = int64(int32(binary.LittleEndian.Uint32(t.Data[4*i:])))
		}
	case Int64:
		for i := 0; i < n; i++ {
			out[i] = int64(binary.LittleEndian.Uint64(t.Data[8*i:]))
		}
	default:
		for i, f := range t.Float64s() {
			out[i] = int64(f)
		}
	}
	return out
}

func (t *Tensor) Bools() []bool {
	n := int(t.NumElements())
	out := make([]bool, n)
	if t.DType == Bool {
		for i := 0; i < n; i++ {
			out[i] = t.Data[i] != 0
		}
		return out
	}
	for i, f := range t.Float64s() {
		out[i] = f != 0
	}
	return out
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	data := make([]byte, len(t.Data))
	copy(data, t.Data)
	return &Tensor{DType: t.DType, Shape: cloneShape(t.Shape), Data: data}
}
