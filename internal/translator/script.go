package translator

import "unicode"

// IsMostlyHangul reports whether the majority of the string's letters are
// Hangul. Such text is already in the target language and is never sent
// for translation. Strings with no letters at all (numbers, symbols) also
// count: there is nothing to translate.
func IsMostlyHangul(s string) bool {
	letters, hangul := 0, 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Hangul, r) {
			hangul++
		}
	}
	if letters == 0 {
		return true
	}
	return hangul*2 > letters
}

// ContainsHan reports whether any ideograph remains in the string. Used to
// validate option-label translations: a residual ideograph means the model
// echoed the source text back.
func ContainsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
