// Package scope computes the authoritative SDK-availability set for every
// navigation node and document. Resolution is a pure function of the manifest
// tree and the per-document declarations: it either produces a fully scoped
// tree or a list of conflicts, never a partial result.
package scope

import (
	"fmt"

	"git.home.luguber.info/inful/docscope/internal/document"
	"git.home.luguber.info/inful/docscope/internal/navigation"
	"git.home.luguber.info/inful/docscope/internal/sdk"
	"git.home.luguber.info/inful/docscope/internal/util/sets"
)

// ConflictCode classifies a scope conflict.
type ConflictCode string

const (
	// ConflictDocFilteredByParent: a document declares SDKs its parent group
	// scope forbids.
	ConflictDocFilteredByParent ConflictCode = "doc-sdk-filtered-by-parent"
	// ConflictGroupFilteredByParent: a group declares SDKs outside its
	// ancestor's declared scope.
	ConflictGroupFilteredByParent ConflictCode = "group-sdk-filtered-by-parent"
	// ConflictEmptyDeclaration: a document declares an empty SDK set; a
	// document must be valid for at least one SDK or be unrestricted.
	ConflictEmptyDeclaration ConflictCode = "doc-sdk-empty"
	// ConflictUnknownSDK: a document declares identifiers outside the
	// universe. Silently narrowing to the recognized subset would publish
	// the wrong variants, so this is a conflict.
	ConflictUnknownSDK ConflictCode = "doc-sdk-unknown"
)

// Conflict describes one scoping contradiction. Conflicts are always fatal
// for the whole build: the scoped manifest is one unit.
type Conflict struct {
	Code     ConflictCode
	Node     string // node title, when the conflict is tree-positional
	Doc      document.Key
	Declared sets.Set[sdk.SDK]
	Parent   sets.Set[sdk.SDK]
	Unknown  []string
}

func (c Conflict) Error() string {
	switch c.Code {
	case ConflictDocFilteredByParent:
		return fmt.Sprintf("%s: document %q declares [%s] but parent scope allows only [%s]",
			c.Code, c.Doc, sdk.Format(c.Declared), sdk.Format(c.Parent))
	case ConflictGroupFilteredByParent:
		return fmt.Sprintf("%s: group %q declares [%s] but ancestor scope allows only [%s]",
			c.Code, c.Node, sdk.Format(c.Declared), sdk.Format(c.Parent))
	case ConflictEmptyDeclaration:
		return fmt.Sprintf("%s: document %q declares an empty sdk set", c.Code, c.Doc)
	case ConflictUnknownSDK:
		return fmt.Sprintf("%s: document %q declares unknown sdk identifiers %v", c.Code, c.Doc, c.Unknown)
	}
	return string(c.Code)
}

// Declarations maps document keys to their declared SDK sets. A missing key
// or a nil set means the document is unrestricted; a non-nil empty set means
// the document declared `sdks:` with no valid members and is rejected.
type Declarations map[document.Key]sets.Set[sdk.SDK]

// BuildDeclarations extracts declarations from parsed documents, rejecting
// unknown identifiers up front.
func BuildDeclarations(docs map[document.Key]*document.Document) (Declarations, []Conflict) {
	decls := make(Declarations, len(docs))
	var conflicts []Conflict
	for key, doc := range docs {
		if len(doc.UnknownSDKs) > 0 {
			conflicts = append(conflicts, Conflict{
				Code:    ConflictUnknownSDK,
				Doc:     key,
				Unknown: doc.UnknownSDKs,
			})
			continue
		}
		if doc.DeclaredSDKs != nil {
			decls[key] = doc.DeclaredSDKs
		}
	}
	return decls, conflicts
}

// ScopedNode is one resolved navigation node. Resolved == nil means the node
// is valid for all SDKs.
type ScopedNode struct {
	Node     navigation.Node
	Resolved sets.Set[sdk.SDK]
	Children []*ScopedNode
}

// ScopedTree is the fully resolved manifest plus the flat document lookup.
type ScopedTree struct {
	Universe  *sdk.Universe
	Roots     []*ScopedNode
	docScopes map[document.Key]sets.Set[sdk.SDK]
	inTree    sets.Set[document.Key]
}

// DocScope returns the SDK set the manifest assigns to a document's
// navigation entry (nil = all SDKs) and whether the document appears in the
// manifest at all.
func (t *ScopedTree) DocScope(key document.Key) (sets.Set[sdk.SDK], bool) {
	if !t.inTree.Has(key) {
		return nil, false
	}
	return t.docScopes[key], true
}

// Resolve runs both resolution passes. On any conflict the scoped tree is
// withheld entirely.
func Resolve(m *navigation.Manifest, decls Declarations) (*ScopedTree, []Conflict) {
	r := &resolver{universe: m.Universe, decls: decls}

	roots := make([]*ScopedNode, 0, len(m.Roots))
	for _, n := range m.Roots {
		roots = append(roots, r.inherit(n, nil))
	}
	for _, sn := range roots {
		r.aggregate(sn)
	}
	if len(r.conflicts) > 0 {
		return nil, r.conflicts
	}

	tree := &ScopedTree{
		Universe:  m.Universe,
		Roots:     roots,
		docScopes: make(map[document.Key]sets.Set[sdk.SDK]),
		inTree:    sets.New[document.Key](),
	}
	tree.collectDocScopes(roots)
	return tree, nil
}

type resolver struct {
	universe  *sdk.Universe
	decls     Declarations
	conflicts []Conflict
}

// inherit is the top-down pass: each node is checked against, and seeded
// with, the nearest ancestor declaration.
func (r *resolver) inherit(n navigation.Node, inherited sets.Set[sdk.SDK]) *ScopedNode {
	switch v := n.(type) {
	case *navigation.Leaf:
		declared, hasDecl := r.decls[v.Doc]
		if hasDecl {
			if len(declared) == 0 {
				r.conflicts = append(r.conflicts, Conflict{
					Code: ConflictEmptyDeclaration,
					Node: v.Title,
					Doc:  v.Doc,
				})
				return &ScopedNode{Node: n}
			}
			if inherited != nil && !declared.SubsetOf(inherited) {
				r.conflicts = append(r.conflicts, Conflict{
					Code:     ConflictDocFilteredByParent,
					Node:     v.Title,
					Doc:      v.Doc,
					Declared: declared,
					Parent:   inherited,
				})
				return &ScopedNode{Node: n}
			}
			return &ScopedNode{Node: n, Resolved: declared}
		}
		return &ScopedNode{Node: n, Resolved: inherited}

	case *navigation.Group:
		own := v.Declared
		if own != nil && inherited != nil && !own.SubsetOf(inherited) {
			r.conflicts = append(r.conflicts, Conflict{
				Code:     ConflictGroupFilteredByParent,
				Node:     v.Title,
				Declared: own,
				Parent:   inherited,
			})
			// Children are still visited so one pass reports every conflict.
		}
		passDown := own
		if passDown == nil {
			passDown = inherited
		}
		sn := &ScopedNode{Node: n, Resolved: passDown}
		for _, child := range v.Children {
			sn.Children = append(sn.Children, r.inherit(child, passDown))
		}
		return sn
	}
	return &ScopedNode{Node: n}
}

// aggregate is the bottom-up pass: a group's children must all be aggregated
// before the group itself, and a union that covers the whole universe
// normalizes to unrestricted.
func (r *resolver) aggregate(sn *ScopedNode) {
	group, ok := sn.Node.(*navigation.Group)
	if !ok {
		return
	}
	for _, child := range sn.Children {
		r.aggregate(child)
	}
	if len(sn.Children) == 0 {
		// Keep the inherited-or-declared seed from the top-down pass.
		return
	}

	union := sets.New[sdk.SDK]()
	unrestricted := false
	for _, child := range sn.Children {
		if child.Resolved == nil {
			unrestricted = true
			break
		}
		union = union.Union(child.Resolved)
	}

	switch {
	case unrestricted || r.universe.Covers(union):
		// The children jointly support every SDK, so the group is by
		// definition unrestricted, explicit declaration or not.
		sn.Resolved = nil
	case group.Declared != nil:
		// Explicit always wins; the union stays leaf-level detail.
		sn.Resolved = group.Declared
	default:
		sn.Resolved = union
	}
}

// collectDocScopes builds the flat document lookup. A document referenced by
// several leaves gets the union of their scopes (nil if any is unrestricted).
func (t *ScopedTree) collectDocScopes(nodes []*ScopedNode) {
	for _, sn := range nodes {
		if leaf, ok := sn.Node.(*navigation.Leaf); ok {
			if !t.inTree.Has(leaf.Doc) {
				t.inTree.Add(leaf.Doc)
				t.docScopes[leaf.Doc] = sn.Resolved
			} else if existing := t.docScopes[leaf.Doc]; existing != nil {
				if sn.Resolved == nil {
					t.docScopes[leaf.Doc] = nil
				} else if merged := existing.Union(sn.Resolved); t.Universe.Covers(merged) {
					t.docScopes[leaf.Doc] = nil
				} else {
					t.docScopes[leaf.Doc] = merged
				}
			}
		}
		t.collectDocScopes(sn.Children)
	}
}
