package bytecode

import (
	"bytes"
	"testing"
)

func TestBufferCursorRoundTrip(t *testing.T) {
	var w Buffer
	w.WriteOp(OpConstInt)
	w.WriteI64(-42)
	w.WriteOp(OpConstFloat)
	w.WriteF64(3.5)
	w.WriteOp(OpConstStr)
	w.WriteU32(7)
	w.WriteOp(OpJump)
	w.WriteI32(-13)
	w.WriteOp(OpLoad)
	w.WriteU8(250)
	w.WriteStr("héllo")

	c := NewCursor(w.Bytes())
	if op := c.ReadOp(); op != OpConstInt {
		t.Fatalf("read %v, want CONST_INT", op)
	}
	if v := c.ReadI64(); v != -42 {
		t.Fatalf("read %d, want -42", v)
	}
	if op := c.ReadOp(); op != OpConstFloat {
		t.Fatalf("read %v, want CONST_FLOAT", op)
	}
	if v := c.ReadF64(); v != 3.5 {
		t.Fatalf("read %g, want 3.5", v)
	}
	if op := c.ReadOp(); op != OpConstStr {
		t.Fatalf("read %v, want CONST_STR", op)
	}
	if v := c.ReadU32(); v != 7 {
		t.Fatalf("read %d, want 7", v)
	}
	if op := c.ReadOp(); op != OpJump {
		t.Fatalf("read %v, want JUMP", op)
	}
	if v := c.ReadI32(); v != -13 {
		t.Fatalf("read %d, want -13", v)
	}
	if op := c.ReadOp(); op != OpLoad {
		t.Fatalf("read %v, want LOAD", op)
	}
	if v := c.ReadU8(); v != 250 {
		t.Fatalf("read %d, want 250", v)
	}
	if s := c.ReadStr(); s != "héllo" {
		t.Fatalf("read %q, want héllo", s)
	}
	if !c.Done() {
		t.Fatal("cursor did not consume everything written")
	}
}

func TestImageEncodeDecodeRoundTrip(t *testing.T) {
	img := &Image{
		FormatVersion: FormatVersion,
		Funcs: []FuncEntry{
			{
				Name:       "main",
				Argc:       0,
				RetTypeId:  11,
				Realization: RealizeCode,
				CodeOffset: 0,
				CodeLen:    3,
			},
			{
				Name:        "rand",
				Argc:        2,
				RetTypeId:   5,
				Cached:      true,
				ArgTypeIds:  []uint32{5, 9},
				Realization: RealizeExtern,
				ExternPath:  "math::rand",
			},
		},
		Errors: ErrorTable{
			Sema: [][]string{{"first", "second"}, {}},
		},
		Strings: []string{"", "hello"},
		Code:    []byte{byte(OpUnit), byte(OpRet), 0},
	}

	decoded, err := Decode(Encode(img))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.FormatVersion != FormatVersion {
		t.Fatalf("format version %q did not round-trip, want %q", decoded.FormatVersion, FormatVersion)
	}
	if len(decoded.Funcs) != 2 {
		t.Fatalf("decoded %d directory entries, want 2", len(decoded.Funcs))
	}
	main := decoded.Funcs[0]
	if main.Name != "main" || main.Realization != RealizeCode || main.CodeLen != 3 {
		t.Fatalf("main entry mangled: %+v", main)
	}
	ext := decoded.Funcs[1]
	if ext.Name != "rand" || ext.Realization != RealizeExtern || ext.ExternPath != "math::rand" {
		t.Fatalf("extern entry mangled: %+v", ext)
	}
	if !ext.Cached || len(ext.ArgTypeIds) != 2 || ext.ArgTypeIds[1] != 9 {
		t.Fatalf("extern metadata mangled: %+v", ext)
	}
	if len(decoded.Errors.Sema) != 2 || decoded.Errors.Sema[0][1] != "second" {
		t.Fatalf("error table mangled: %+v", decoded.Errors)
	}
	if len(decoded.Strings) != 2 || decoded.Strings[1] != "hello" {
		t.Fatalf("string table mangled: %+v", decoded.Strings)
	}
	if !bytes.Equal(decoded.Code, img.Code) {
		t.Fatal("code blob mangled")
	}
}

// TestForeignVersionRoundTrips pins the version gate end to end: an
// image stamped by a different (newer) build must come back with that
// build's version string, not this one's, so CheckVersion can actually
// reject it.
func TestForeignVersionRoundTrips(t *testing.T) {
	img := &Image{
		FormatVersion: "v9.0.0",
		Strings:       []string{"x"},
		Code:          []byte{byte(OpUnit)},
	}
	decoded, err := Decode(Encode(img))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.FormatVersion != "v9.0.0" {
		t.Fatalf("decoded version %q, want the embedded v9.0.0", decoded.FormatVersion)
	}
	if err := CheckVersion(decoded.FormatVersion); err == nil {
		t.Fatal("a v9 image passed this build's version gate")
	}
	if decoded.Strings[0] != "x" || len(decoded.Code) != 1 {
		t.Fatal("sections shifted after the version header")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("shrt")); err == nil {
		t.Fatal("short input accepted")
	}
	bad := Encode(&Image{})
	bad[0] = 'X'
	if _, err := Decode(bad); err == nil {
		t.Fatal("bad magic accepted")
	}
}

func TestCheckVersion(t *testing.T) {
	if err := CheckVersion(FormatVersion); err != nil {
		t.Fatalf("current version rejected: %v", err)
	}
	if err := CheckVersion("v0.9.0"); err == nil {
		t.Fatal("version below the supported floor accepted")
	}
	if err := CheckVersion("not-a-version"); err == nil {
		t.Fatal("malformed version accepted")
	}
}
