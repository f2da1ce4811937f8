// Package classfile parses Java .class bytecode far enough to recover a
// class's own name, its superclass, and the interfaces it implements. It
// does not build a full constant pool object model the way a classloader
// would (see fca524f3_artipop-jacobin's classloader.go for that); it keeps
// just enough of the constant pool to resolve three name references.
package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/flanksource/arch-unit/models"
)

const magic = 0xCAFEBABE

// constant pool tags, JVM spec §4.4.
const (
	tagUTF8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// Class is the subset of a parsed .class file the rest of the system needs.
type Class struct {
	// Name is the fully-qualified class name with '.' separators
	// (e.g. "com.example.Widget", "com.example.Widget$Inner").
	Name string
	// SuperName is the superclass's FQ name, or "" for java.lang.Object or
	// an interface (whose super_class slot is also java.lang.Object, but is
	// not meaningful as an extends edge).
	SuperName string
	// InterfaceNames are the FQ names of interfaces this class implements.
	InterfaceNames []string
	// IsInterface reports whether the ACC_INTERFACE flag was set.
	IsInterface bool
}

// IsNestedClass reports whether name denotes a compiler-generated nested
// class (anonymous, local, or member), recognized by a '$' in the simple
// name. Filtering these out is left to the caller (§4.3): Read always
// parses them successfully.
func IsNestedClass(name string) bool {
	idx := strings.LastIndexByte(name, '/')
	simple := name
	if idx >= 0 {
		simple = name[idx+1:]
	}
	return strings.Contains(simple, "$")
}

type reader struct {
	r   io.Reader
	buf [8]byte
}

func (rd *reader) u1() (uint8, error) {
	if _, err := io.ReadFull(rd.r, rd.buf[:1]); err != nil {
		return 0, err
	}
	return rd.buf[0], nil
}

func (rd *reader) u2() (uint16, error) {
	if _, err := io.ReadFull(rd.r, rd.buf[:2]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(rd.buf[:2]), nil
}

func (rd *reader) u4() (uint32, error) {
	if _, err := io.ReadFull(rd.r, rd.buf[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(rd.buf[:4]), nil
}

func (rd *reader) skip(n int) error {
	if n == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, rd.r, int64(n))
	return err
}

// poolEntry holds just enough of a constant pool slot to resolve
// CONSTANT_Class_info -> CONSTANT_Utf8_info chains.
type poolEntry struct {
	tag      uint8
	utf8     string
	classRef uint16 // name_index, valid when tag == tagClass
}

// header holds what's common to every entry point into a .class stream:
// the validated magic/version and the parsed constant pool.
type header struct {
	rd   *reader
	pool []poolEntry
}

func readHeader(r io.Reader) (*header, error) {
	rd := &reader{r: r}

	got, err := rd.u4()
	if err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", models.ErrMalformedClass, err)
	}
	if got != magic {
		return nil, fmt.Errorf("%w: bad magic %#x", models.ErrMalformedClass, got)
	}

	// minor_version, major_version
	if _, err := rd.u2(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
	}
	if _, err := rd.u2(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
	}

	pool, err := parseConstantPool(rd)
	if err != nil {
		return nil, err
	}
	return &header{rd: rd, pool: pool}, nil
}

func parseConstantPool(rd *reader) ([]poolEntry, error) {
	poolCount, err := rd.u2()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
	}

	pool := make([]poolEntry, poolCount) // 1-indexed; index 0 unused
	for i := 1; i < int(poolCount); i++ {
		tag, err := rd.u1()
		if err != nil {
			return nil, fmt.Errorf("%w: reading tag %d: %v", models.ErrMalformedClass, i, err)
		}

		switch tag {
		case tagUTF8:
			length, err := rd.u2()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
			}
			raw := make([]byte, length)
			if _, err := io.ReadFull(rd.r, raw); err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
			}
			pool[i] = poolEntry{tag: tag, utf8: string(raw)}

		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			idx, err := rd.u2()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
			}
			pool[i] = poolEntry{tag: tag, classRef: idx}

		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			if err := rd.skip(4); err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
			}
			pool[i] = poolEntry{tag: tag}

		case tagInteger, tagFloat:
			if err := rd.skip(4); err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
			}
			pool[i] = poolEntry{tag: tag}

		case tagLong, tagDouble:
			if err := rd.skip(8); err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
			}
			pool[i] = poolEntry{tag: tag}
			// Long/Double take two constant pool slots (JVM spec §4.4.5).
			i++

		case tagMethodHandle:
			if err := rd.skip(3); err != nil {
				return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
			}
			pool[i] = poolEntry{tag: tag}

		default:
			return nil, fmt.Errorf("%w: unknown constant pool tag %d at index %d", models.ErrMalformedClass, tag, i)
		}
	}

	return pool, nil
}

func resolveClassName(pool []poolEntry, classIndex uint16) (string, bool) {
	if int(classIndex) >= len(pool) {
		return "", false
	}
	entry := pool[classIndex]
	if entry.tag != tagClass {
		return "", false
	}
	if int(entry.classRef) >= len(pool) {
		return "", false
	}
	name := pool[entry.classRef]
	if name.tag != tagUTF8 {
		return "", false
	}
	return strings.ReplaceAll(name.utf8, "/", "."), true
}

func resolveUTF8(pool []poolEntry, index uint16) (string, bool) {
	if int(index) >= len(pool) {
		return "", false
	}
	entry := pool[index]
	if entry.tag != tagUTF8 {
		return "", false
	}
	return entry.utf8, true
}

// classInfo parses the this_class/super_class/interfaces block that follows
// the constant pool, and resolves it against h.pool. Used by both Read and
// ReadWithMethods, which then diverge: Read stops here, ReadWithMethods goes
// on to fields and methods.
func (h *header) classInfo() (*Class, error) {
	rd := h.rd
	pool := h.pool

	accessFlags, err := rd.u2()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
	}
	const accInterface = 0x0200

	thisClass, err := rd.u2()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
	}
	superClass, err := rd.u2()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
	}

	interfaceCount, err := rd.u2()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
	}
	interfaceIdx := make([]uint16, interfaceCount)
	for i := range interfaceIdx {
		idx, err := rd.u2()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
		}
		interfaceIdx[i] = idx
	}

	name, ok := resolveClassName(pool, thisClass)
	if !ok {
		return nil, fmt.Errorf("%w: unresolvable this_class", models.ErrMalformedClass)
	}

	c := &Class{Name: name, IsInterface: accessFlags&accInterface != 0}

	if superClass != 0 {
		if superName, ok := resolveClassName(pool, superClass); ok && superName != "java.lang.Object" {
			c.SuperName = superName
		}
	}

	for _, idx := range interfaceIdx {
		if ifaceName, ok := resolveClassName(pool, idx); ok {
			c.InterfaceNames = append(c.InterfaceNames, ifaceName)
		}
	}

	return c, nil
}

// Read parses a single .class file from r, resolving its own name,
// superclass, and interfaces. Fields, methods, and class attributes are
// irrelevant to §4.3's contract, so Read stops here rather than validate
// the rest of the file; use ReadWithMethods when method signatures are
// needed too.
func Read(r io.Reader) (*Class, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	return h.classInfo()
}

// Method is one method_info entry, decoded into a human-readable shape.
type Method struct {
	Name       string
	Descriptor string
	IsStatic   bool
	IsPublic   bool
}

// ReadWithMethods parses a .class file through its methods table, for
// DetailExtractor's bytecode-based signature disassembly step (§4.7):
// when no source archive is available, the method list here is rendered
// into Java-like signatures without ever decompiling a method body.
func ReadWithMethods(r io.Reader) (*Class, []Method, error) {
	h, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}
	c, err := h.classInfo()
	if err != nil {
		return nil, nil, err
	}

	if err := h.skipMemberGroup(); err != nil { // fields
		return nil, nil, err
	}
	methods, err := h.readMethods()
	if err != nil {
		return nil, nil, err
	}

	return c, methods, nil
}

// skipMemberGroup consumes one field_info or method_info array without
// extracting anything, used to get past the fields table.
func (h *header) skipMemberGroup() error {
	rd := h.rd
	count, err := rd.u2()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
	}
	for i := 0; i < int(count); i++ {
		if err := rd.skip(6); err != nil { // access_flags, name_index, descriptor_index
			return fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
		}
		if err := h.skipAttributes(); err != nil {
			return err
		}
	}
	return nil
}

func (h *header) readMethods() ([]Method, error) {
	rd := h.rd
	count, err := rd.u2()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
	}

	const (
		accPublic = 0x0001
		accStatic = 0x0008
	)

	methods := make([]Method, 0, count)
	for i := 0; i < int(count); i++ {
		accessFlags, err := rd.u2()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
		}
		nameIdx, err := rd.u2()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
		}
		descIdx, err := rd.u2()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
		}

		name, _ := resolveUTF8(h.pool, nameIdx)
		desc, _ := resolveUTF8(h.pool, descIdx)

		if err := h.skipAttributes(); err != nil {
			return nil, err
		}

		// <init>/<clinit> are constructors/static initializers, not
		// callable members a caller would search for by signature.
		if name == "<init>" || name == "<clinit>" {
			continue
		}

		methods = append(methods, Method{
			Name:       name,
			Descriptor: desc,
			IsStatic:   accessFlags&accStatic != 0,
			IsPublic:   accessFlags&accPublic != 0,
		})
	}
	return methods, nil
}

// Signature renders a Java-like method signature from the JVM descriptor,
// e.g. "(Ljava/lang/String;I)Ljava/lang/String;" with name "format" becomes
// "public String format(String, int)". Parameter names are not recoverable
// from a descriptor alone (the JVM spec doesn't require them); only types
// and arity are.
func (m Method) Signature() string {
	params, ret := parseDescriptor(m.Descriptor)

	var b strings.Builder
	if m.IsPublic {
		b.WriteString("public ")
	}
	if m.IsStatic {
		b.WriteString("static ")
	}
	b.WriteString(ret)
	b.WriteByte(' ')
	b.WriteString(m.Name)
	b.WriteByte('(')
	b.WriteString(strings.Join(params, ", "))
	b.WriteByte(')')
	return b.String()
}

// parseDescriptor decodes a JVM method descriptor into (parameter type
// names, return type name), converting slot codes to Java source names;
// class types are rendered by their simple name (java.lang.String -> String).
func parseDescriptor(desc string) ([]string, string) {
	i := strings.IndexByte(desc, '(')
	j := strings.IndexByte(desc, ')')
	if i != 0 || j < 0 || j >= len(desc) {
		return nil, "void"
	}

	var params []string
	raw := desc[i+1 : j]
	for len(raw) > 0 {
		t, rest := decodeType(raw)
		params = append(params, t)
		raw = rest
	}

	retType, _ := decodeType(desc[j+1:])
	return params, retType
}

// decodeType decodes one field/return type descriptor at the start of s
// and returns (javaName, remainder).
func decodeType(s string) (string, string) {
	if s == "" {
		return "void", ""
	}

	arrayDepth := 0
	for len(s) > 0 && s[0] == '[' {
		arrayDepth++
		s = s[1:]
	}

	var name string
	rest := s[1:]
	switch s[0] {
	case 'B':
		name = "byte"
	case 'C':
		name = "char"
	case 'D':
		name = "double"
	case 'F':
		name = "float"
	case 'I':
		name = "int"
	case 'J':
		name = "long"
	case 'S':
		name = "short"
	case 'Z':
		name = "boolean"
	case 'V':
		name = "void"
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 0 {
			name = strings.ReplaceAll(s[1:], "/", ".")
			rest = ""
		} else {
			name = strings.ReplaceAll(s[1:end], "/", ".")
			rest = s[end+1:]
		}
		if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
			name = name[dot+1:]
		}
	default:
		name = "?"
	}

	name += strings.Repeat("[]", arrayDepth)
	return name, rest
}

func (h *header) skipAttributes() error {
	rd := h.rd
	count, err := rd.u2()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
	}
	for i := 0; i < int(count); i++ {
		if _, err := rd.u2(); err != nil { // attribute_name_index
			return fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
		}
		length, err := rd.u4()
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
		}
		if err := rd.skip(int(length)); err != nil {
			return fmt.Errorf("%w: %v", models.ErrMalformedClass, err)
		}
	}
	return nil
}
