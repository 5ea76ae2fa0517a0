package nvptx

import (
	"strconv"

	"github.com/llir/llvm/ir/types"
	"github.com/pkg/errors"
)

// classify maps an IR type to a virtual register class: p (predicate),
// rs (16-bit), r (32-bit), rd (64-bit), f (f32), fd (f64).
func classify(t types.Type) (string, error) {
	switch t := t.(type) {
	case *types.IntType:
		switch {
		case t.BitSize == 1:
			return "p", nil
		case t.BitSize <= 16:
			return "rs", nil
		case t.BitSize <= 32:
			return "r", nil
		case t.BitSize <= 64:
			return "rd", nil
		}
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindFloat:
			return "f", nil
		case types.FloatKindDouble:
			return "fd", nil
		}
	case *types.PointerType:
		return "rd", nil
	}
	return "", errors.Errorf("no register class for type %v", t)
}

func regClassForBits(bits int) string {
	switch {
	case bits <= 16:
		return "rs"
	case bits <= 32:
		return "r"
	}
	return "rd"
}

func selpSuffix(cls string) string {
	switch cls {
	case "f":
		return "f32"
	case "fd":
		return "f64"
	case "rd":
		return "b64"
	case "rs":
		return "b16"
	}
	return "b32"
}

func movSuffix(cls string) string {
	switch cls {
	case "p":
		return "pred"
	case "rs":
		return "b16"
	case "rd":
		return "b64"
	case "f":
		return "f32"
	case "fd":
		return "f64"
	}
	return "b32"
}

// memSuffix is the ld/st/param type suffix for a value of type t.
func memSuffix(t types.Type) (string, error) {
	switch t := t.(type) {
	case *types.IntType:
		switch t.BitSize {
		case 8:
			return "u8", nil
		case 16:
			return "u16", nil
		case 32:
			return "u32", nil
		case 64:
			return "u64", nil
		}
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindFloat:
			return "f32", nil
		case types.FloatKindDouble:
			return "f64", nil
		}
	case *types.PointerType:
		return "u64", nil
	}
	return "", errors.Errorf("no memory access suffix for type %v", t)
}

func intBits(t types.Type) (int, error) {
	it, ok := t.(*types.IntType)
	if !ok {
		if _, ok := t.(*types.PointerType); ok {
			return 64, nil
		}
		return 0, errors.Errorf("expected integer type, got %v", t)
	}
	return int(it.BitSize), nil
}

func intSuffix(t types.Type, signed bool) (string, error) {
	bits, err := intBits(t)
	if err != nil {
		return "", err
	}
	if bits == 1 {
		return "", errors.New("i1 has no arithmetic suffix")
	}
	bits = opBits(bits)
	if signed {
		return "s" + strconv.Itoa(bits), nil
	}
	return "u" + strconv.Itoa(bits), nil
}

// opBits widens a width to the narrowest one the instruction set computes in.
// There are no 8-bit arithmetic, logic, or mov forms; i8 values live in 16-bit
// registers and use the 16-bit suffixes.
func opBits(bits int) int {
	if bits < 16 {
		return 16
	}
	return bits
}

func floatSuffix(t types.Type) (string, error) {
	ft, ok := t.(*types.FloatType)
	if !ok {
		return "", errors.Errorf("expected float type, got %v", t)
	}
	switch ft.Kind {
	case types.FloatKindFloat:
		return "f32", nil
	case types.FloatKindDouble:
		return "f64", nil
	}
	return "", errors.Errorf("unsupported float kind %v", ft.Kind)
}

func bitSize(t types.Type) int {
	return int(sizeOf(t) * 8)
}

// paramBits is the .param slot width used by the device-function ABI: 32 bits
// for anything that fits, 64 otherwise.
func paramBits(t types.Type) int {
	switch t := t.(type) {
	case *types.IntType:
		if t.BitSize > 32 {
			return 64
		}
		return 32
	case *types.FloatType:
		if t.Kind == types.FloatKindDouble {
			return 64
		}
		return 32
	case *types.PointerType:
		return 64
	}
	return 64
}

// sizeOf reports a type's storage size in bytes under the NVPTX layout.
func sizeOf(t types.Type) int64 {
	switch t := t.(type) {
	case *types.IntType:
		return int64((t.BitSize + 7) / 8)
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindHalf:
			return 2
		case types.FloatKindFloat:
			return 4
		}
		return 8
	case *types.PointerType:
		return 8
	case *types.ArrayType:
		return int64(t.Len) * sizeOf(t.ElemType)
	case *types.VectorType:
		return int64(t.Len) * sizeOf(t.ElemType)
	case *types.StructType:
		var size int64
		for _, f := range t.Fields {
			a := alignOf(f)
			size = (size + a - 1) / a * a
			size += sizeOf(f)
		}
		a := alignOf(t)
		return (size + a - 1) / a * a
	}
	return 8
}

func alignOf(t types.Type) int64 {
	switch t := t.(type) {
	case *types.ArrayType:
		return alignOf(t.ElemType)
	case *types.VectorType:
		return alignOf(t.ElemType)
	case *types.StructType:
		a := int64(1)
		for _, f := range t.Fields {
			if fa := alignOf(f); fa > a {
				a = fa
			}
		}
		return a
	}
	return sizeOf(t)
}

func structFieldOffset(t *types.StructType, field int64) int64 {
	var off int64
	for i := int64(0); i < field; i++ {
		a := alignOf(t.Fields[i])
		off = (off + a - 1) / a * a
		off += sizeOf(t.Fields[i])
	}
	if field < int64(len(t.Fields)) {
		a := alignOf(t.Fields[field])
		off = (off + a - 1) / a * a
	}
	return off
}
