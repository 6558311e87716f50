package axis

import "unicode"

const utf8RuneSelf = 0x80

// Identifier classification shared by declaration parsing and template
// scanning. Tokens and tags follow the usual identifier shape: a letter or
// underscore first, then letters, digits or underscores.

func IsIdentStartByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

func IsIdentContinueByte(b byte) bool {
	return IsIdentStartByte(b) || (b >= '0' && b <= '9')
}

func IsIdentStartRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func IsIdentContinueRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ValidIdent reports whether s is a well-formed identifier token.
func ValidIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r < utf8RuneSelf {
			b := byte(r)
			if i == 0 {
				if !IsIdentStartByte(b) {
					return false
				}
			} else if !IsIdentContinueByte(b) {
				return false
			}
			continue
		}
		if i == 0 {
			if !IsIdentStartRune(r) {
				return false
			}
		} else if !IsIdentContinueRune(r) {
			return false
		}
	}
	return true
}
