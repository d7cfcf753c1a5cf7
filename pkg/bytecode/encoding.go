package bytecode

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/kristofer/nvmbr/pkg/value"
)

// image is the on-disk container a compiled program is persisted as.
// gob handles this outer shell; the constant pool inside each function
// is walked by hand (see encodeFunction/decodeFunction): constants are
// NaN-boxed values holding object pointers, which gob cannot encode.
// The walk recurses into nested function constants and does no cycle
// detection; a compiled program's constant pools form a tree.
type image struct {
	Name string
	Root encodedFunction
}

type encodedValue struct {
	Kind byte // 0 nil, 1 bool true, 2 bool false, 3 number, 4 string, 5 function
	Num  float64
	Str  string
	Fn   *encodedFunction
}

type encodedFunction struct {
	Arity      int
	UpvalCount int
	Name       string
	HasName    bool
	Code       []byte
	Lines      []LineRun
	Constants  []encodedValue
}

// Encode serializes chunk (the top-level script function) to w.
func Encode(w io.Writer, chunk *Chunk, scriptName string) error {
	root, err := encodeFunction(chunk, nil)
	if err != nil {
		return err
	}
	img := image{Name: scriptName, Root: *root}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(img); err != nil {
		return fmt.Errorf("bytecode: encode: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// Decode deserializes a chunk previously written by Encode.
func Decode(r io.Reader) (*Chunk, string, error) {
	var img image
	if err := gob.NewDecoder(r).Decode(&img); err != nil {
		return nil, "", fmt.Errorf("bytecode: decode: %w", err)
	}
	chunk := decodeFunction(&img.Root)
	return chunk, img.Name, nil
}

func encodeFunction(chunk *Chunk, name *value.ObjString) (*encodedFunction, error) {
	ef := &encodedFunction{Code: chunk.Code, Lines: chunk.LineRuns()}
	if name != nil {
		ef.Name = name.Chars
		ef.HasName = true
	}

	for _, c := range chunk.Constants {
		ev, err := encodeValue(c)
		if err != nil {
			return nil, err
		}
		ef.Constants = append(ef.Constants, ev)
	}
	return ef, nil
}

func encodeValue(v value.Value) (encodedValue, error) {
	switch {
	case value.IsNil(v):
		return encodedValue{Kind: 0}, nil
	case value.IsBool(v):
		if value.AsBool(v) {
			return encodedValue{Kind: 1}, nil
		}
		return encodedValue{Kind: 2}, nil
	case value.IsNumber(v):
		return encodedValue{Kind: 3, Num: value.AsNumber(v)}, nil
	case value.IsObjType(v, value.ObjTypeString):
		return encodedValue{Kind: 4, Str: value.AsString(value.AsObj(v)).Chars}, nil
	case value.IsObjType(v, value.ObjTypeFunction):
		fn := value.AsFunction(value.AsObj(v))
		sub, err := encodeFunction(fn.Chunk.(*Chunk), fn.Name)
		if err != nil {
			return encodedValue{}, err
		}
		sub.Arity = fn.Arity
		sub.UpvalCount = fn.UpvalCount
		return encodedValue{Kind: 5, Fn: sub}, nil
	default:
		return encodedValue{}, fmt.Errorf("bytecode: cannot persist constant value %s", value.String(v))
	}
}

func decodeFunction(ef *encodedFunction) *Chunk {
	chunk := &Chunk{Code: ef.Code}
	chunk.SetLineRuns(ef.Lines)
	for _, ev := range ef.Constants {
		chunk.Constants = append(chunk.Constants, decodeValue(ev))
	}
	return chunk
}

func decodeValue(ev encodedValue) value.Value {
	switch ev.Kind {
	case 0:
		return value.Nil
	case 1:
		return value.True
	case 2:
		return value.False
	case 3:
		return value.Number(ev.Num)
	case 4:
		return value.FromObj(&value.NewString(ev.Str).Obj)
	case 5:
		fn := value.NewFunction()
		fn.Arity = ev.Fn.Arity
		fn.UpvalCount = ev.Fn.UpvalCount
		fn.Chunk = decodeFunction(ev.Fn)
		if ev.Fn.HasName {
			fn.Name = value.NewString(ev.Fn.Name)
		}
		return value.FromObj(&fn.Obj)
	default:
		return value.Nil
	}
}
