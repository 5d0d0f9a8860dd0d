package keystroke

// Precomposed Hangul syllables are laid out as
// base + (initial*21 + medial)*28 + final, with final 0 meaning none.
const (
	syllableBase  = 0xAC00
	syllableLast  = 0xD7A3
	medialCount   = 21
	finalCount    = 28
	initialStride = medialCount * finalCount
)

type syllable struct {
	initial, medial, final int
}

func (s syllable) hasFinal() bool { return s.final != 0 }

// decompose splits a precomposed syllable into its jamo indices.
func decompose(r rune) (syllable, bool) {
	if r < syllableBase || r > syllableLast {
		return syllable{}, false
	}
	idx := int(r - syllableBase)
	return syllable{
		initial: idx / initialStride,
		medial:  (idx % initialStride) / finalCount,
		final:   idx % finalCount,
	}, true
}

func isLineBreak(r rune) bool { return r == '\n' || r == '\r' }
