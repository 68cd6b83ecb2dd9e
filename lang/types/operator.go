package types

import "github.com/mna/corvid/lang/token"

// OperatorValid reports whether op may be applied to a value of type t (for
// a binary operator, both operands must pass this check and then be mutually
// Compatible; the expression compiler is responsible for that second step).
func OperatorValid(op token.Token, t *Type) bool {
	k := t.Kind
	switch op {
	case token.PLUS:
		return k.IsInteger() || k.IsReal() || k == Str
	case token.MINUS, token.STAR, token.SLASH:
		return k.IsInteger() || k.IsReal()
	case token.PERCENT, token.AMPERSAND, token.PIPE, token.CIRCUMFLEX, token.LTLT, token.GTGT, token.TILDE:
		return k.IsInteger()
	case token.AND, token.OR, token.NOT:
		return k == Bool
	case token.EQL, token.NEQ:
		return k.IsOrdinal() || k.IsReal() || k == Ptr || k == Null || k == Str
	case token.LT, token.LE, token.GT, token.GE:
		return k.IsOrdinal() || k.IsReal() || k == Str
	case token.INC, token.DEC:
		return k.IsInteger()
	}
	return false
}
