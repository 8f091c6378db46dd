package mortar

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Every typed error below unwraps to one of them.
var (
	ErrUnknownOperator     = errors.New("unknown operator")
	ErrUnbalancedConstruct = errors.New("unbalanced construct")
	ErrUnresolvedSymbol    = errors.New("unresolved symbol")
	ErrUnmatchedSignature  = errors.New("unmatched signature")
	ErrArityMismatch       = errors.New("arity mismatch")
)

// UnknownOperatorError is returned when a token has no priority entry.
type UnknownOperatorError struct {
	Token Token
}

func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("%s: unknown operator: %q", e.Token.Pos, e.Token.Text)
}

func (e *UnknownOperatorError) Unwrap() error { return ErrUnknownOperator }

// UnbalancedConstructError is returned when brackets or blocks do not pair up,
// including the case where the token stream runs out before parsing completes.
type UnbalancedConstructError struct {
	Token  Token
	Reason string
}

func (e *UnbalancedConstructError) Error() string {
	if e.Token.Kind == KindBoundary {
		return fmt.Sprintf("unbalanced construct: %s", e.Reason)
	}
	return fmt.Sprintf("%s: unbalanced construct at %q: %s", e.Token.Pos, e.Token.Text, e.Reason)
}

func (e *UnbalancedConstructError) Unwrap() error { return ErrUnbalancedConstruct }

// UnresolvedSymbolError is returned when a name is bound in no enclosing scope.
type UnresolvedSymbolError struct {
	Name string
}

func (e *UnresolvedSymbolError) Error() string {
	return fmt.Sprintf("unresolved symbol: %s", e.Name)
}

func (e *UnresolvedSymbolError) Unwrap() error { return ErrUnresolvedSymbol }

// UnmatchedSignatureError is returned when no macro guard accepts a node's shape.
type UnmatchedSignatureError struct {
	Signature string
}

func (e *UnmatchedSignatureError) Error() string {
	return fmt.Sprintf("unmatched signature: %q", e.Signature)
}

func (e *UnmatchedSignatureError) Unwrap() error { return ErrUnmatchedSignature }

// ArityMismatchError is returned by closures under strict arity.
type ArityMismatchError struct {
	Name string
	Want int
	Got  int
}

func (e *ArityMismatchError) Error() string {
	name := e.Name
	if name == "" {
		name = "fn"
	}
	return fmt.Sprintf("%s: expected %d args, got %d", name, e.Want, e.Got)
}

func (e *ArityMismatchError) Unwrap() error { return ErrArityMismatch }
