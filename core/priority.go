package mortar

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

const (
	// maxPower is the opener/prefix binding power; closers use maxPower+1 on
	// their right so they always reduce.
	maxPower = 10000

	// Nullary tokens (identifiers, numbers, strings) bind harder than anything.
	nullaryLeft  = 20001
	nullaryRight = 20000

	towerBase = 5
	towerStep = 5

	prefixMark = "P:"
	typeMark   = "type:"
)

// Priority is a token's binding power toward its left and right neighbours.
type Priority struct {
	Left   int
	Right  int
	Suffix bool // may close a construct; an operator after it is not prefix
}

type Order int

const (
	OrderDone Order = iota
	OrderOpen
	OrderClose
	OrderMerge
)

func (o Order) String() string {
	switch o {
	case OrderDone:
		return "done"
	case OrderOpen:
		return "open"
	case OrderClose:
		return "close"
	case OrderMerge:
		return "merge"
	default:
		return fmt.Sprintf("order(%d)", int(o))
	}
}

// block describes one bracket/block construct for balance checking.
type block struct {
	opener  string
	middles map[string]bool
	closer  string
}

type PriorityTable struct {
	entries map[string]Priority
	// role of each block keyword, used to report unbalanced constructs
	openers map[string][]block
	closing map[string]bool
}

// NewPriorityTable resolves a grammar into binding powers. All conflicts are
// reported together.
func NewPriorityTable(g *Grammar) (*PriorityTable, error) {
	pt := &PriorityTable{
		entries: map[string]Priority{},
		openers: map[string][]block{},
		closing: map[string]bool{},
	}
	var result *multierror.Error
	set := func(key string, p Priority) {
		if old, ok := pt.entries[key]; ok && old != p {
			result = multierror.Append(result, fmt.Errorf("%q: conflicting priorities (%d, %d) and (%d, %d)",
				key, old.Left, old.Right, p.Left, p.Right))
			return
		}
		pt.entries[key] = p
	}

	for key, lr := range g.Priorities {
		set(key, Priority{Left: lr[0], Right: lr[1]})
	}
	set(KindBoundary.String()+":"+boundaryText, Priority{Left: -1, Right: -1})

	for _, def := range g.Blocks {
		parts := spellings(def)
		if len(parts) < 2 {
			result = multierror.Append(result, fmt.Errorf("block %q: need an opener and a closer", def))
			continue
		}
		b := block{opener: parts[0], closer: parts[len(parts)-1], middles: map[string]bool{}}
		set(b.opener, Priority{Left: maxPower, Right: 0})
		set(b.closer, Priority{Left: 0, Right: maxPower + 1, Suffix: true})
		for _, m := range parts[1 : len(parts)-1] {
			set(m, Priority{})
			b.middles[m] = true
			pt.closing[m] = true
		}
		pt.openers[b.opener] = append(pt.openers[b.opener], b)
		pt.closing[b.closer] = true
	}

	level := towerBase
	for _, lvl := range g.Tower {
		right := level - int(lvl.Assoc)
		for _, op := range spellings(lvl.Ops) {
			if len(op) > len(prefixMark) && op[:len(prefixMark)] == prefixMark {
				p := Priority{Left: maxPower, Right: right}
				set(op, p)
				if _, ok := pt.entries[op[len(prefixMark):]]; !ok {
					pt.entries[op[len(prefixMark):]] = p
				}
				continue
			}
			set(op, Priority{Left: level, Right: right})
		}
		level += towerStep
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return pt, nil
}

// Lookup resolves a token: kind:text, then P:text for prefix tokens, then the
// plain text, then type:kind.
func (pt *PriorityTable) Lookup(t Token) (Priority, error) {
	if p, ok := pt.entries[t.Kind.String()+":"+t.Text]; ok {
		return p, nil
	}
	if t.Prefix {
		if p, ok := pt.entries[prefixMark+t.Text]; ok {
			return p, nil
		}
	}
	if p, ok := pt.entries[t.Text]; ok {
		return p, nil
	}
	if p, ok := pt.entries[typeMark+t.Kind.String()]; ok {
		return p, nil
	}
	return Priority{}, &UnknownOperatorError{Token: t}
}

// Order compares a's right power with b's left power.
func (pt *PriorityTable) Order(a, b Token) (Order, error) {
	if a.Kind == KindBoundary && b.Kind == KindBoundary {
		return OrderDone, nil
	}
	pa, err := pt.Lookup(a)
	if err != nil {
		return 0, err
	}
	pb, err := pt.Lookup(b)
	if err != nil {
		return 0, err
	}
	switch {
	case pa.Right < pb.Left:
		return OrderOpen, nil
	case pa.Right > pb.Left:
		return OrderClose, nil
	default:
		return OrderMerge, nil
	}
}

// checkBalanced rejects a completed handle whose keywords do not form one of
// the grammar's blocks.
func (pt *PriorityTable) checkBalanced(h *Handle) error {
	first := h.Tokens[0]
	last := h.Tokens[len(h.Tokens)-1]
	if first.Kind == KindBoundary {
		return nil
	}
	if pt.closing[first.Text] {
		return &UnbalancedConstructError{Token: first, Reason: "no matching opener"}
	}
	blocks, ok := pt.openers[first.Text]
	if !ok {
		return nil
	}
	for _, b := range blocks {
		if len(h.Tokens) < 2 || last.Text != b.closer {
			continue
		}
		matched := true
		for _, t := range h.Tokens[1 : len(h.Tokens)-1] {
			if !b.middles[t.Text] {
				matched = false
				break
			}
		}
		if matched {
			return nil
		}
	}
	return &UnbalancedConstructError{Token: first, Reason: "not closed"}
}
