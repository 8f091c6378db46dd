package mortar

import (
	"fmt"
)

// Parser is an operator-precedence parser for one grammar. It holds no
// per-parse state and can be shared.
type Parser struct {
	grammar *Grammar
	table   *PriorityTable
	scan    *scanner
}

func NewParser(g *Grammar) (*Parser, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grammar: %w", err)
	}
	table, err := NewPriorityTable(g)
	if err != nil {
		return nil, fmt.Errorf("priority table: %w", err)
	}
	scan, err := newScanner(g.Patterns)
	if err != nil {
		return nil, err
	}
	return &Parser{grammar: g, table: table, scan: scan}, nil
}

// MustParser is NewParser for grammars known to be valid.
func MustParser(g *Grammar) *Parser {
	p, err := NewParser(g)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Parser) Table() *PriorityTable {
	return p.table
}

func (p *Parser) Grammar() *Grammar {
	return p.grammar
}

// ParseTree parses src with the default finalizer.
func (p *Parser) ParseTree(src string) (Node, error) {
	return p.Parse(src, Finalize)
}

// Parse builds a tree from src. Empty input yields a nil node.
//
// The loop compares the token on the left of the pending operand (middle)
// with the token on its right: open starts a new handle, merge extends the
// current one, close hands the current one to finalize and makes the result
// the new middle.
func (p *Parser) Parse(src string, finalize Finalizer) (Node, error) {
	tokens, err := p.Tokenize(src)
	if err != nil {
		return nil, err
	}
	in := &tokenStream{tokens: tokens}
	left, err := in.next()
	if err != nil {
		return nil, err
	}
	right, err := in.next()
	if err != nil {
		return nil, err
	}

	var (
		stack   []*Handle
		middle  Node
		current = newHandle(nil, left)
	)
	for {
		order, err := p.table.Order(left, right)
		if err != nil {
			return nil, err
		}
		switch order {
		case OrderDone:
			return middle, nil

		case OrderOpen:
			stack = append(stack, current)
			current = newHandle(middle, right)
			middle = nil
			left = right
			if right, err = in.next(); err != nil {
				return nil, err
			}

		case OrderClose:
			current.Children = append(current.Children, middle)
			if err := p.table.checkBalanced(current); err != nil {
				return nil, err
			}
			if middle, err = finalize(current); err != nil {
				return nil, err
			}
			if len(stack) == 0 {
				return nil, &UnbalancedConstructError{Token: right, Reason: "nothing left to close"}
			}
			current = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			left = current.Tokens[len(current.Tokens)-1]

		case OrderMerge:
			current.Children = append(current.Children, middle)
			current.Tokens = append(current.Tokens, right)
			middle = nil
			left = right
			if right, err = in.next(); err != nil {
				return nil, err
			}
		}
	}
}
