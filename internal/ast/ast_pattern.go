package ast

// Pattern is a match arm's pattern. Margarine's match only ever
// discriminates on an enum tag, optionally binding the variant's payload,
// so the pattern language stays small: a named variant (with optional
// payload binding) or a wildcard.
type Pattern interface {
	patternNode()
}

// VariantPattern matches a specific enum variant by name and optionally
// binds its payload to Binding.
type VariantPattern struct {
	VariantName Name
	Binding     *Name // nil if the variant's payload is ignored
}

func (VariantPattern) patternNode() {}

// WildcardPattern matches any remaining tag; it is only valid as an
// enum's last arm and makes the match exhaustive regardless of how many
// variants it actually covers.
type WildcardPattern struct{}

func (WildcardPattern) patternNode() {}
