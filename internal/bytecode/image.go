package bytecode

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/mod/semver"
)

// Magic is the fixed 4-byte header identifying a Margarine bytecode
// image.
var Magic = [4]byte{'M', 'R', 'G', 'B'}

// FormatVersion is the semver string every image embeds; the supported
// range below is what this VM build accepts.
const FormatVersion = "v1.0.0"

// SupportedMin/SupportedMax bound the format versions this VM build can
// load; both ends are inclusive.
const (
	SupportedMin = "v1.0.0"
	SupportedMax = "v1.999.999"
)

// CheckVersion reports whether version falls within [SupportedMin,
// SupportedMax].
func CheckVersion(version string) error {
	if !semver.IsValid(version) {
		return fmt.Errorf("bytecode: invalid format version %q", version)
	}
	if semver.Compare(version, SupportedMin) < 0 || semver.Compare(version, SupportedMax) > 0 {
		return fmt.Errorf("bytecode: format version %s outside supported range [%s, %s]", version, SupportedMin, SupportedMax)
	}
	return nil
}

// FuncRealization distinguishes the two ways a directory entry resolves to
// executable behavior.
type FuncRealization uint8

const (
	RealizeCode FuncRealization = iota
	RealizeExtern
)

// Directory tags: each entry starts with Func, the directory ends with
// a single Terminate byte.
const (
	tagFunc      byte = 0x01
	tagTerminate byte = 0x00
)

const (
	kindCode   byte = 0
	kindExtern byte = 1
)

// FuncEntry is one function directory entry: name, arity, a return type
// id (the low 32 bits of the type's monomorphization hash — informational
// only, the VM never branches on it since register tags are
// self-describing), the per-function cache flag, each argument's type id,
// and either a code region or an extern path.
type FuncEntry struct {
	Name       string
	Argc       uint8
	RetTypeId  uint32
	Cached     bool
	ArgTypeIds []uint32

	Realization FuncRealization
	CodeOffset  uint32
	CodeLen     uint32
	ExternPath  string
}

// ErrorTable holds the image's three error-kind sections: lexer, parser,
// sema. Each section is a per-file list of message strings; the
// sema section is the one this repository's analyzer actually populates
// (lexer/parser are out-of-scope external collaborators, but the section
// shape is carried so an image produced by the full toolchain round-trips
// here unchanged).
type ErrorTable struct {
	Lexer  [][]string
	Parser [][]string
	Sema   [][]string
}

// Image is a fully assembled, loadable bytecode program.
type Image struct {
	FormatVersion string
	Funcs         []FuncEntry
	Errors        ErrorTable
	Strings       []string
	Code          []byte
}

// FindFunc returns the directory entry named name, if any.
func (img *Image) FindFunc(name string) (*FuncEntry, bool) {
	for i := range img.Funcs {
		if img.Funcs[i].Name == name {
			return &img.Funcs[i], true
		}
	}
	return nil, false
}

func writeErrorSection(w *Buffer, files [][]string) {
	w.WriteU32(uint32(len(files)))
	for _, errs := range files {
		w.WriteU32(uint32(len(errs)))
		for _, e := range errs {
			w.WriteStr(e)
		}
	}
}

func readErrorSection(c *Cursor) [][]string {
	fileCount := c.ReadU32()
	files := make([][]string, fileCount)
	for i := range files {
		errCount := c.ReadU32()
		errs := make([]string, errCount)
		for j := range errs {
			errs[j] = c.ReadStr()
		}
		files[i] = errs
	}
	return files
}

// Encode serializes img into its final on-disk byte layout: magic, the
// embedded format-version string, three section-length prefixes, the
// err/str/func sections, then the code blob. Lengths are given up front;
// the sections follow in err, str, func order.
func Encode(img *Image) []byte {
	version := img.FormatVersion
	if version == "" {
		version = FormatVersion
	}

	var errBuf, strBuf, funcBuf Buffer

	writeErrorSection(&errBuf, img.Errors.Lexer)
	writeErrorSection(&errBuf, img.Errors.Parser)
	writeErrorSection(&errBuf, img.Errors.Sema)

	strBuf.WriteU32(uint32(len(img.Strings)))
	for _, s := range img.Strings {
		strBuf.WriteStr(s)
	}

	for _, f := range img.Funcs {
		funcBuf.WriteByte2(tagFunc)
		funcBuf.WriteStr(f.Name)
		funcBuf.WriteU8(f.Argc)
		funcBuf.WriteU32(f.RetTypeId)
		if f.Cached {
			funcBuf.WriteU8(1)
		} else {
			funcBuf.WriteU8(0)
		}
		// The reader recovers exactly Argc ids, so pad a short slice
		// rather than desynchronizing the directory.
		for i := 0; i < int(f.Argc); i++ {
			var t uint32
			if i < len(f.ArgTypeIds) {
				t = f.ArgTypeIds[i]
			}
			funcBuf.WriteU32(t)
		}
		switch f.Realization {
		case RealizeCode:
			funcBuf.WriteByte2(kindCode)
			funcBuf.WriteU32(f.CodeOffset)
			funcBuf.WriteU32(f.CodeLen)
		case RealizeExtern:
			funcBuf.WriteByte2(kindExtern)
			funcBuf.WriteStr(f.ExternPath)
		}
	}
	funcBuf.WriteByte2(tagTerminate)

	var out Buffer
	out.WriteBytes(Magic[:])
	out.WriteStr(version)
	out.WriteU32(uint32(funcBuf.Len()))
	out.WriteU32(uint32(errBuf.Len()))
	out.WriteU32(uint32(strBuf.Len()))
	out.WriteBytes(errBuf.Bytes())
	out.WriteBytes(strBuf.Bytes())
	out.WriteBytes(funcBuf.Bytes())
	out.WriteBytes(img.Code)
	return out.Bytes()
}

// Decode parses an image written by Encode. The embedded format version
// is read back as written; callers gate on it with CheckVersion.
func Decode(data []byte) (*Image, error) {
	if len(data) < 20 {
		return nil, fmt.Errorf("bytecode: image too short (%d bytes)", len(data))
	}
	if data[0] != Magic[0] || data[1] != Magic[1] || data[2] != Magic[2] || data[3] != Magic[3] {
		return nil, fmt.Errorf("bytecode: bad magic header")
	}
	versionLen := int(binary.LittleEndian.Uint32(data[4:8]))
	if 8+versionLen+12 > len(data) {
		return nil, fmt.Errorf("bytecode: version string overflows image size")
	}
	c := NewCursor(data)
	c.Pos = 4
	version := c.ReadStr()
	funcLen := c.ReadU32()
	errLen := c.ReadU32()
	strLen := c.ReadU32()

	errStart := c.Pos
	strStart := errStart + int(errLen)
	funcStart := strStart + int(strLen)
	codeStart := funcStart + int(funcLen)
	if codeStart > len(data) {
		return nil, fmt.Errorf("bytecode: section lengths overflow image size")
	}

	errC := NewCursor(data[errStart:strStart])
	var tbl ErrorTable
	tbl.Lexer = readErrorSection(errC)
	tbl.Parser = readErrorSection(errC)
	tbl.Sema = readErrorSection(errC)

	strC := NewCursor(data[strStart:funcStart])
	strCount := strC.ReadU32()
	strings := make([]string, strCount)
	for i := range strings {
		strings[i] = strC.ReadStr()
	}

	funcC := NewCursor(data[funcStart:codeStart])
	var funcs []FuncEntry
	for {
		tag := funcC.ReadByte()
		if tag == tagTerminate {
			break
		}
		if tag != tagFunc {
			return nil, fmt.Errorf("bytecode: unknown directory tag 0x%02x", tag)
		}
		var f FuncEntry
		f.Name = funcC.ReadStr()
		f.Argc = funcC.ReadU8()
		f.RetTypeId = funcC.ReadU32()
		f.Cached = funcC.ReadU8() != 0
		f.ArgTypeIds = make([]uint32, f.Argc)
		for i := range f.ArgTypeIds {
			f.ArgTypeIds[i] = funcC.ReadU32()
		}
		kind := funcC.ReadByte()
		switch kind {
		case kindCode:
			f.Realization = RealizeCode
			f.CodeOffset = funcC.ReadU32()
			f.CodeLen = funcC.ReadU32()
		case kindExtern:
			f.Realization = RealizeExtern
			f.ExternPath = funcC.ReadStr()
		default:
			return nil, fmt.Errorf("bytecode: unknown function kind %d for %q", kind, f.Name)
		}
		funcs = append(funcs, f)
	}

	return &Image{
		FormatVersion: version,
		Funcs:         funcs,
		Errors:        tbl,
		Strings:       strings,
		Code:          data[codeStart:],
	}, nil
}
