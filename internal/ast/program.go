package ast

// Program is the root of one parsed file: its node arena plus the
// top-level declarations in source order. Nested modules are DeclId
// references into the same arena, not separate files.
type Program struct {
	File  string
	Arena *Arena
	Decls []DeclId
}
