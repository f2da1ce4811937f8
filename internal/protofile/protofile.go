// Package protofile extracts the Java class names a .proto file's
// protoc-gen-java would generate, without running protoc: just enough
// textual parsing of package/option/message/enum/service declarations.
package protofile

import (
	"regexp"
	"strings"
)

// File is the result of parsing one .proto file.
type File struct {
	Package            string
	JavaPackage        string
	JavaOuterClassname string
	JavaMultipleFiles  bool
	// TopLevelNames are the proto-level names of every top-level message,
	// enum, and service declaration (nesting inside a message is not a
	// top-level definition and is not included).
	TopLevelNames []string
}

var (
	commentLine  = regexp.MustCompile(`//[^\n]*`)
	commentBlock = regexp.MustCompile(`(?s)/\*.*?\*/`)

	packageStmt   = regexp.MustCompile(`(?m)^\s*package\s+([A-Za-z_][\w.]*)\s*;`)
	javaPackage   = regexp.MustCompile(`option\s+java_package\s*=\s*"([^"]*)"\s*;`)
	javaOuter     = regexp.MustCompile(`option\s+java_outer_classname\s*=\s*"([^"]*)"\s*;`)
	javaMultiple  = regexp.MustCompile(`option\s+java_multiple_files\s*=\s*(true|false)\s*;`)
	topLevelDecl  = regexp.MustCompile(`(?m)^\s*(message|enum|service)\s+([A-Za-z_]\w*)`)
)

// stripComments removes // and /* */ comments so they can't be mistaken for
// declarations or confuse brace-depth tracking.
func stripComments(src string) string {
	src = commentBlock.ReplaceAllString(src, "")
	src = commentLine.ReplaceAllString(src, "")
	return src
}

// Parse reads a .proto file's text and extracts the fields needed to derive
// the Java classes protoc would generate for it (§4.4).
func Parse(src string) *File {
	clean := stripComments(src)

	f := &File{}
	if m := packageStmt.FindStringSubmatch(clean); m != nil {
		f.Package = m[1]
	}
	if m := javaPackage.FindStringSubmatch(clean); m != nil {
		f.JavaPackage = m[1]
	}
	if m := javaOuter.FindStringSubmatch(clean); m != nil {
		f.JavaOuterClassname = m[1]
	}
	if m := javaMultiple.FindStringSubmatch(clean); m != nil {
		f.JavaMultipleFiles = m[1] == "true"
	}

	f.TopLevelNames = topLevelDefinitions(clean)
	return f
}

// topLevelDefinitions scans for message/enum/service keywords at brace
// depth 0, tracking '{'/'}' so a nested message inside another message
// isn't mistaken for a top-level definition.
func topLevelDefinitions(src string) []string {
	var names []string
	depth := 0

	matches := topLevelDecl.FindAllStringSubmatchIndex(src, -1)
	matchAt := map[int][]int{}
	for _, m := range matches {
		matchAt[m[0]] = m
	}

	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}

		if m, ok := matchAt[i]; ok && depth == 0 {
			name := src[m[4]:m[5]]
			names = append(names, name)
		}
	}

	return names
}

// JavaPackageName resolves the effective Java package: java_package wins
// if set, otherwise the proto package, dot-joined.
func (f *File) JavaPackageName() string {
	if f.JavaPackage != "" {
		return f.JavaPackage
	}
	return f.Package
}

// GeneratedClassNames returns the fully-qualified Java class names
// protoc-gen-java would emit for this file. The outer class (java_
// outer_classname, or the file's base name UpperCamelCased) is always
// generated and always indexed, even under java_multiple_files: protoc
// still emits it to hold the file descriptor. On top of that:
//
//   - java_multiple_files=true: one additional top-level class per
//     top-level message, enum, and service declaration.
//   - otherwise: every message/enum/service is nested inside the outer
//     class, so no additional names are generated.
func (f *File) GeneratedClassNames(baseFileName string) []string {
	pkg := f.JavaPackageName()
	prefix := ""
	if pkg != "" {
		prefix = pkg + "."
	}

	outer := f.JavaOuterClassname
	if outer == "" {
		outer = defaultOuterClassName(baseFileName)
	}

	out := []string{prefix + outer}
	if f.JavaMultipleFiles {
		for _, n := range f.TopLevelNames {
			out = append(out, prefix+n)
		}
	}
	return out
}

// defaultOuterClassName mirrors protoc's fallback: strip the .proto
// extension, split on '_' and '.', UpperCamelCase each piece, join.
func defaultOuterClassName(baseFileName string) string {
	name := strings.TrimSuffix(baseFileName, ".proto")
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '.' || r == '-' })

	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		if len(p) > 1 {
			b.WriteString(p[1:])
		}
	}
	return b.String()
}
