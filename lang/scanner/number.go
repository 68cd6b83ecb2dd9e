package scanner

import (
	"strconv"
	"strings"

	"github.com/mna/corvid/lang/token"
)

// scanNumber scans an integer or floating-point literal starting at the
// current rune (a decimal digit, since scanNumber is never called on a
// leading '.').
func (s *Scanner) scanNumber(pos token.Position) (token.Token, Value) {
	startOff := s.off
	tok := token.INT
	base := 10
	prefix := rune(0)
	invalid := -1

	if s.cur == '0' {
		s.advance()
		switch lower(s.cur) {
		case 'x':
			s.advance()
			base, prefix = 16, 'x'
		case 'o':
			s.advance()
			base, prefix = 8, 'o'
		case 'b':
			s.advance()
			base, prefix = 2, 'b'
		}
	}
	digsep := s.digits(base, &invalid)
	if prefix == 0 && s.src[startOff] == '0' {
		digsep |= 1 // the leading '0' consumed above is itself a digit
	}

	if s.cur == '.' {
		tok = token.FLOAT
		if prefix == 'o' || prefix == 'b' {
			s.errorf(pos, "invalid radix point in %s", litname(prefix))
		}
		s.advance()
		digsep |= s.digits(base, &invalid)
	}
	if digsep&1 == 0 {
		s.errorf(pos, "%s has no digits", litname(prefix))
	}

	if e := lower(s.cur); e == 'e' && prefix == 0 {
		s.advance()
		tok = token.FLOAT
		if s.cur == '+' || s.cur == '-' {
			s.advance()
		}
		ds := s.digits(10, nil)
		if ds&1 == 0 {
			s.errorf(pos, "exponent has no digits")
		}
	}

	lit := string(s.src[startOff:s.off])
	if tok == token.INT && invalid >= 0 {
		s.errorf(pos, "invalid digit in %s", litname(prefix))
	}

	val := Value{Pos: pos, Str: lit}
	if tok == token.INT {
		n, err := numberToInt(lit, base)
		if err != nil {
			s.errorf(pos, "invalid integer literal %q: %v", lit, err)
		}
		val.Int = n
	} else {
		f, err := strconv.ParseFloat(strings.ReplaceAll(lit, "_", ""), 64)
		if err != nil {
			s.errorf(pos, "invalid float literal %q: %v", lit, err)
		}
		val.Float = f
	}
	return tok, val
}

func isHexadecimal(rn rune) bool {
	return isDigit(rn) || 'a' <= rn && rn <= 'f' || 'A' <= rn && rn <= 'F'
}

// digits accepts a run of { digit | '_' } and returns a bitset: bit 0 set if
// at least one digit was seen, bit 1 set if an underscore separator was
// seen. If a digit outside base is found, its offset is recorded in
// *invalid (when invalid is non-nil and currently < 0).
func (s *Scanner) digits(base int, invalid *int) (digsep int) {
	if base <= 10 {
		max := rune('0' + base)
		for isDigit(s.cur) || s.cur == '_' {
			ds := 1
			if s.cur == '_' {
				ds = 2
			} else if s.cur >= max && invalid != nil && *invalid < 0 {
				*invalid = s.off
			}
			digsep |= ds
			s.advance()
		}
	} else {
		for isHexadecimal(s.cur) || s.cur == '_' {
			ds := 1
			if s.cur == '_' {
				ds = 2
			}
			digsep |= ds
			s.advance()
		}
	}
	return
}

func litname(prefix rune) string {
	switch prefix {
	case 'x':
		return "hexadecimal literal"
	case 'o':
		return "octal literal"
	case 'b':
		return "binary literal"
	}
	return "decimal literal"
}

func lower(ch rune) rune { return ('a' - 'A') | ch }

func numberToInt(lit string, base int) (int64, error) {
	if base != 10 {
		lit = lit[2:] // skip 0x/0o/0b prefix
	}
	return strconv.ParseInt(strings.ReplaceAll(lit, "_", ""), base, 64)
}
