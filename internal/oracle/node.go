package oracle

// NodeKind classifies syntax nodes exposed by the oracle.
type NodeKind int

const (
	KindOther NodeKind = iota
	KindFile
	KindPackage
	KindImport
	// KindGroup wraps declarations without carrying identity of its own
	// (declaration groups, multi-name specs, struct and interface bodies).
	KindGroup
	// KindBlock and KindSignature open a scope whose names never escape it.
	KindBlock
	KindSignature
	KindTypeDecl
	KindFunc
	KindMethod
	KindVar
	KindConst
	KindField
	KindInterfaceMethod
	KindTypeParam
	KindParam
	KindLabel
	KindProperty
	KindIdentifier
)

var kindNames = map[NodeKind]string{
	KindOther:           "other",
	KindFile:            "file",
	KindPackage:         "package",
	KindImport:          "import",
	KindGroup:           "group",
	KindBlock:           "block",
	KindSignature:       "signature",
	KindTypeDecl:        "type",
	KindFunc:            "function",
	KindMethod:          "method",
	KindVar:             "variable",
	KindConst:           "constant",
	KindField:           "field",
	KindInterfaceMethod: "interface_method",
	KindTypeParam:       "type_parameter",
	KindParam:           "parameter",
	KindLabel:           "label",
	KindProperty:        "property",
	KindIdentifier:      "identifier",
}

func (k NodeKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsDeclaration reports whether nodes of this kind introduce a name.
func (k NodeKind) IsDeclaration() bool {
	switch k {
	case KindPackage, KindImport, KindTypeDecl, KindFunc, KindMethod, KindVar, KindConst,
		KindField, KindInterfaceMethod, KindTypeParam, KindParam, KindLabel, KindProperty:
		return true
	}
	return false
}

// Node is a syntax node. Implementations must be comparable (pointer types)
// and the parent relation must never change once observed.
type Node interface {
	Kind() NodeKind
	// Name is the declared name for declarations and the text for identifiers.
	Name() string
	// NameNode is the identifier child that names a declaration, or nil.
	NameNode() Node
	Parent() Node
	// Owner is the container used for qualification. It equals Parent except
	// where the language attaches a declaration elsewhere (Go methods belong
	// to their receiver type).
	Owner() Node
	Children() []Node
	File() string
	// Range is the selection span: the identifier for names, the name for
	// declarations.
	Range() Range
	FullRange() Range
	// Redeclarable reports whether the name may legally repeat within its
	// container, e.g. Go init functions and the blank identifier.
	Redeclarable() bool
}

// IsDefinitionSite reports whether n is the name child of a declaration.
func IsDefinitionSite(n Node) bool {
	if n == nil || n.Kind() != KindIdentifier {
		return false
	}
	p := n.Parent()
	if p == nil || !p.Kind().IsDeclaration() {
		return false
	}
	return p.NameNode() == n
}

// Walk visits n and its descendants in pre-order. pre returning false skips
// the children; post, when non-nil, runs after the children.
func Walk(n Node, pre func(Node) bool, post func(Node)) {
	if n == nil {
		return
	}
	if pre != nil && !pre(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(c, pre, post)
	}
	if post != nil {
		post(n)
	}
}
