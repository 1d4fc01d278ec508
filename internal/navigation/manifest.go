// Package navigation loads the hand-maintained navigation manifest: the SDK
// universe plus the ordered tree of groups and leaves that drives output
// generation.
package navigation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docscope/internal/sdk"
	"git.home.luguber.info/inful/docscope/internal/util/sets"
)

// Node is either a *Leaf or a *Group.
type Node interface {
	NodeTitle() string
	navNode()
}

// Leaf points at one document.
type Leaf struct {
	Title string
	Doc   string // document key
	Icon  string // decorative, passed through to output
}

// Group is a titled, ordered collection of child nodes.
type Group struct {
	Title    string
	Declared sets.Set[sdk.SDK] // nil when the group declares nothing
	Collapse bool
	Children []Node
}

func (l *Leaf) NodeTitle() string  { return l.Title }
func (g *Group) NodeTitle() string { return g.Title }
func (*Leaf) navNode()             {}
func (*Group) navNode()            {}

// Manifest is the loaded navigation manifest.
type Manifest struct {
	Universe *sdk.Universe
	Roots    []Node
}

// rawNode is the YAML shape; a node with children is a group, a node with an
// href is a leaf. Declaring both is ambiguous and rejected.
type rawNode struct {
	Title    string    `yaml:"title"`
	Href     string    `yaml:"href,omitempty"`
	Icon     string    `yaml:"icon,omitempty"`
	SDK      []string  `yaml:"sdk,omitempty"`
	Collapse bool      `yaml:"collapse,omitempty"`
	Children []rawNode `yaml:"children,omitempty"`
}

type rawManifest struct {
	SDKs       []string  `yaml:"sdks"`
	Navigation []rawNode `yaml:"navigation"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	var raw rawManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	universe, err := sdk.NewUniverse(raw.SDKs)
	if err != nil {
		return nil, err
	}

	roots := make([]Node, 0, len(raw.Navigation))
	for i, rn := range raw.Navigation {
		node, err := buildNode(rn, universe, fmt.Sprintf("navigation[%d]", i))
		if err != nil {
			return nil, err
		}
		roots = append(roots, node)
	}
	return &Manifest{Universe: universe, Roots: roots}, nil
}

func buildNode(rn rawNode, universe *sdk.Universe, where string) (Node, error) {
	if rn.Title == "" {
		return nil, fmt.Errorf("%s: node has no title", where)
	}
	if rn.Href != "" && len(rn.Children) > 0 {
		return nil, fmt.Errorf("%s (%s): node declares both href and children", where, rn.Title)
	}

	if rn.Href != "" {
		if len(rn.SDK) > 0 {
			// Per-leaf scope lives in the document's frontmatter; a manifest
			// sdk field on a leaf would create a second source of truth.
			return nil, fmt.Errorf("%s (%s): sdk declarations belong on groups or in document frontmatter", where, rn.Title)
		}
		return &Leaf{Title: rn.Title, Doc: rn.Href, Icon: rn.Icon}, nil
	}

	group := &Group{Title: rn.Title, Collapse: rn.Collapse}
	if len(rn.SDK) > 0 {
		declared, unknown := universe.ParseList(rn.SDK)
		if len(unknown) > 0 {
			return nil, fmt.Errorf("%s (%s): unknown sdk identifiers %v", where, rn.Title, unknown)
		}
		if len(declared) == 0 {
			return nil, fmt.Errorf("%s (%s): sdk field present but empty", where, rn.Title)
		}
		group.Declared = declared
	}
	for i, child := range rn.Children {
		node, err := buildNode(child, universe, fmt.Sprintf("%s (%s) child[%d]", where, rn.Title, i))
		if err != nil {
			return nil, err
		}
		group.Children = append(group.Children, node)
	}
	return group, nil
}

// DocKeys returns every document key referenced by the tree, in manifest
// order, without duplicates.
func (m *Manifest) DocKeys() []string {
	seen := sets.New[string]()
	var keys []string
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			switch v := n.(type) {
			case *Leaf:
				if !seen.Has(v.Doc) {
					seen.Add(v.Doc)
					keys = append(keys, v.Doc)
				}
			case *Group:
				walk(v.Children)
			}
		}
	}
	walk(m.Roots)
	return keys
}
