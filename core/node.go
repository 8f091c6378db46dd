package mortar

import (
	"strings"
)

// Node is a parse tree node: either a collapsed leaf Token or an *Inner.
type Node interface {
	node()
}

// Handle is the slot list of a node under construction. Slots alternate
// child, token, child, ..., child, so Children always has one more entry than
// Tokens. A nil child is an absent operand.
type Handle struct {
	Children []Node
	Tokens   []Token
}

func newHandle(middle Node, tok Token) *Handle {
	return &Handle{Children: []Node{middle}, Tokens: []Token{tok}}
}

// Inner is a finalized node with at least one operand or more than one token.
type Inner struct {
	Handle
	Args      []Node // non-nil children, left to right
	Signature string
}

func (*Inner) node() {}

func (n *Inner) String() string {
	var b strings.Builder
	b.WriteString("{")
	b.WriteString(n.Signature)
	for _, a := range n.Args {
		b.WriteString(" ")
		switch a := a.(type) {
		case Token:
			b.WriteString(a.Text)
		case *Inner:
			b.WriteString(a.String())
		}
	}
	b.WriteString("}")
	return b.String()
}

// Op returns the i-th token of the node.
func (n *Inner) Op(i int) Token {
	return n.Tokens[i]
}

// Finalizer turns a completed handle into the node that replaces it. It is
// called inside out: the handle's children are already finalized.
type Finalizer func(h *Handle) (Node, error)

// Finalize collapses [nil, tok, nil] into tok and wraps anything else in an
// *Inner carrying its args and signature.
func Finalize(h *Handle) (Node, error) {
	if len(h.Tokens) == 1 && h.Children[0] == nil && h.Children[1] == nil {
		return h.Tokens[0], nil
	}
	n := &Inner{Handle: *h, Signature: Signature(h)}
	for _, c := range h.Children {
		if c != nil {
			n.Args = append(n.Args, c)
		}
	}
	return n, nil
}

// Signature renders the shape of a handle: "E" for a present child, "_" for
// an absent one and the literal text of each token.
func Signature(h *Handle) string {
	parts := make([]string, 0, len(h.Children)+len(h.Tokens))
	for i, c := range h.Children {
		if c == nil {
			parts = append(parts, "_")
		} else {
			parts = append(parts, "E")
		}
		if i < len(h.Tokens) {
			parts = append(parts, h.Tokens[i].Text)
		}
	}
	return strings.Join(parts, " ")
}

// Leaves returns the tokens of a tree in source order.
func Leaves(n Node) []Token {
	var out []Token
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case Token:
			out = append(out, n)
		case *Inner:
			for i, c := range n.Children {
				if c != nil {
					walk(c)
				}
				if i < len(n.Tokens) {
					out = append(out, n.Tokens[i])
				}
			}
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

// FormatTree renders a tree one node per line, indented by depth.
func FormatTree(n Node) string {
	var b strings.Builder
	var walk func(Node, int)
	walk = func(n Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		switch n := n.(type) {
		case Token:
			b.WriteString(n.Kind.String())
			b.WriteString(" ")
			b.WriteString(quoteText(n.Text))
			b.WriteString("\n")
		case *Inner:
			b.WriteString(quoteText(n.Signature))
			b.WriteString("\n")
			for _, a := range n.Args {
				walk(a, depth+1)
			}
		}
	}
	if n == nil {
		return "<empty>\n"
	}
	walk(n, 0)
	return b.String()
}

func quoteText(s string) string {
	return strings.ReplaceAll(s, "\n", `\n`)
}
