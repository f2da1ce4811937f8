package classfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/flanksource/arch-unit/models"
	"github.com/stretchr/testify/require"
)

// classBuilder assembles a minimal, well-formed .class byte stream for
// tests, so we exercise the real binary parser instead of stubbing it out.
type classBuilder struct {
	buf  bytes.Buffer
	pool [][]byte
}

func newClassBuilder() *classBuilder { return &classBuilder{} }

func (b *classBuilder) addUTF8(s string) uint16 {
	entry := append([]byte{tagUTF8}, u16(uint16(len(s)))...)
	entry = append(entry, []byte(s)...)
	b.pool = append(b.pool, entry)
	return uint16(len(b.pool))
}

func (b *classBuilder) addClass(nameIdx uint16) uint16 {
	entry := append([]byte{tagClass}, u16(nameIdx)...)
	b.pool = append(b.pool, entry)
	return uint16(len(b.pool))
}

func u16(v uint16) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, v)
	return out
}
func u32(v uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}

func (b *classBuilder) build(accessFlags uint16, thisClass, superClass uint16, interfaces []uint16) []byte {
	var out bytes.Buffer
	out.Write(u32(magic))
	out.Write(u16(0))  // minor
	out.Write(u16(52)) // major

	out.Write(u16(uint16(len(b.pool) + 1)))
	for _, e := range b.pool {
		out.Write(e)
	}

	out.Write(u16(accessFlags))
	out.Write(u16(thisClass))
	out.Write(u16(superClass))

	out.Write(u16(uint16(len(interfaces))))
	for _, i := range interfaces {
		out.Write(u16(i))
	}

	out.Write(u16(0)) // fields_count
	out.Write(u16(0)) // methods_count
	out.Write(u16(0)) // attributes_count

	return out.Bytes()
}

type methodSpec struct {
	accessFlags uint16
	nameIdx     uint16
	descIdx     uint16
}

func (b *classBuilder) buildWithMethods(accessFlags uint16, thisClass, superClass uint16, interfaces []uint16, methods []methodSpec) []byte {
	var out bytes.Buffer
	out.Write(u32(magic))
	out.Write(u16(0))
	out.Write(u16(52))

	out.Write(u16(uint16(len(b.pool) + 1)))
	for _, e := range b.pool {
		out.Write(e)
	}

	out.Write(u16(accessFlags))
	out.Write(u16(thisClass))
	out.Write(u16(superClass))

	out.Write(u16(uint16(len(interfaces))))
	for _, i := range interfaces {
		out.Write(u16(i))
	}

	out.Write(u16(0)) // fields_count

	out.Write(u16(uint16(len(methods))))
	for _, m := range methods {
		out.Write(u16(m.accessFlags))
		out.Write(u16(m.nameIdx))
		out.Write(u16(m.descIdx))
		out.Write(u16(0)) // attributes_count
	}

	out.Write(u16(0)) // class attributes_count

	return out.Bytes()
}

func TestReadWithMethodsDecodesSignatures(t *testing.T) {
	b := newClassBuilder()
	widgetName := b.addUTF8("com/example/Widget")
	widgetClass := b.addClass(widgetName)
	objectName := b.addUTF8("java/lang/Object")
	objectClass := b.addClass(objectName)

	formatName := b.addUTF8("format")
	formatDesc := b.addUTF8("(Ljava/lang/String;I)Ljava/lang/String;")
	ctorName := b.addUTF8("<init>")
	ctorDesc := b.addUTF8("()V")

	const accPublic = 0x0001
	const accStatic = 0x0008

	raw := b.buildWithMethods(0x0021, widgetClass, objectClass, nil, []methodSpec{
		{accessFlags: accPublic | accStatic, nameIdx: formatName, descIdx: formatDesc},
		{accessFlags: accPublic, nameIdx: ctorName, descIdx: ctorDesc},
	})

	c, methods, err := ReadWithMethods(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "com.example.Widget", c.Name)
	require.Len(t, methods, 1, "constructors are not callable members")
	require.Equal(t, "format", methods[0].Name)
	require.True(t, methods[0].IsStatic)
	require.Equal(t, "public static String format(String, int)", methods[0].Signature())
}

func TestParseDescriptorArraysAndPrimitives(t *testing.T) {
	params, ret := parseDescriptor("([I[Ljava/lang/String;Z)V")
	require.Equal(t, []string{"int[]", "String[]", "boolean"}, params)
	require.Equal(t, "void", ret)
}

func TestReadResolvesNameSuperAndInterfaces(t *testing.T) {
	b := newClassBuilder()
	widgetName := b.addUTF8("com/example/Widget")
	widgetClass := b.addClass(widgetName)
	objectName := b.addUTF8("java/lang/Object")
	objectClass := b.addClass(objectName)
	greetableName := b.addUTF8("com/example/Greetable")
	greetableClass := b.addClass(greetableName)

	raw := b.build(0x0021, widgetClass, objectClass, []uint16{greetableClass})

	c, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "com.example.Widget", c.Name)
	require.Empty(t, c.SuperName, "java.lang.Object must not be reported as a super edge")
	require.Equal(t, []string{"com.example.Greetable"}, c.InterfaceNames)
	require.False(t, c.IsInterface)
}

func TestReadKeepsRealSuperclass(t *testing.T) {
	b := newClassBuilder()
	baseName := b.addUTF8("com/example/Base")
	baseClass := b.addClass(baseName)
	midName := b.addUTF8("com/example/Mid")
	midClass := b.addClass(midName)

	raw := b.build(0x0021, midClass, baseClass, nil)

	c, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "com.example.Base", c.SuperName)
}

func TestReadRejectsBadMagic(t *testing.T) {
	raw := append([]byte{0xDE, 0xAD, 0xBE, 0xEF}, make([]byte, 10)...)
	_, err := Read(bytes.NewReader(raw))
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrMalformedClass))
}

func TestReadRejectsTruncatedFile(t *testing.T) {
	b := newClassBuilder()
	name := b.addUTF8("com/example/Widget")
	cls := b.addClass(name)
	raw := b.build(0x0021, cls, 0, nil)

	// Read stops after the interfaces table, so the cut has to reach into
	// it: dropping the last 7 bytes leaves a 1-byte interfaces_count.
	_, err := Read(bytes.NewReader(raw[:len(raw)-7]))
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrMalformedClass))
}

func TestIsNestedClass(t *testing.T) {
	require.True(t, IsNestedClass("com/example/Outer$Inner"))
	require.True(t, IsNestedClass("com.example.Outer$1"))
	require.False(t, IsNestedClass("com/example/Widget"))
}

func TestReadDoubleWidthConstantsDoNotDesyncThePool(t *testing.T) {
	// Hand-assemble a pool where slot 1 is a Long (occupying slots 1 and 2
	// per JVM spec §4.4.5), slot 3 is the Utf8 name, and slot 4 is the
	// Class entry referencing it. If the double-width skip were wrong,
	// this Class entry would resolve against the wrong slot.
	var out bytes.Buffer
	out.Write(u32(magic))
	out.Write(u16(0))
	out.Write(u16(52))

	out.Write(u16(5)) // constant_pool_count: slots 1..4 used
	out.Write([]byte{tagLong})
	out.Write(make([]byte, 8))
	name := "com/example/Widget"
	out.Write([]byte{tagUTF8})
	out.Write(u16(uint16(len(name))))
	out.Write([]byte(name))
	out.Write([]byte{tagClass})
	out.Write(u16(3))

	out.Write(u16(0x0021)) // access_flags
	out.Write(u16(4))      // this_class
	out.Write(u16(0))      // super_class
	out.Write(u16(0))      // interfaces_count
	out.Write(u16(0))      // fields_count
	out.Write(u16(0))      // methods_count
	out.Write(u16(0))      // attributes_count

	c, err := Read(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	require.Equal(t, "com.example.Widget", c.Name)
}
