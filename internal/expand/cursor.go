package expand

import (
	"fmt"
	"unicode/utf8"

	"fortio.org/safecast"

	"stencil/internal/source"
)

// cursor is a byte position inside a template file.
type cursor struct {
	file  *source.File
	off   uint32
	limit uint32
}

func newCursor(f *source.File) cursor {
	limit, err := safecast.Conv[uint32](len(f.Content))
	if err != nil {
		panic(fmt.Errorf("len file content overflow: %w", err))
	}
	return cursor{file: f, off: 0, limit: limit}
}

func (c *cursor) eof() bool {
	return c.off >= c.limit
}

// peek reads the current byte without advancing; 0 at end of input.
func (c *cursor) peek() byte {
	if c.eof() {
		return 0
	}
	return c.file.Content[c.off]
}

// bump advances one byte and returns it; 0 at end of input.
func (c *cursor) bump() byte {
	if c.eof() {
		return 0
	}
	b := c.file.Content[c.off]
	c.off++
	return b
}

// mark is a saved position used to slice out the fragment read since.
type mark uint32

func (c *cursor) mark() mark {
	return mark(c.off)
}

func (c *cursor) spanFrom(m mark) source.Span {
	return source.Span{File: c.file.ID, Start: uint32(m), End: c.off}
}

// textFrom returns the bytes read since the mark.
func (c *cursor) textFrom(m mark) []byte {
	return c.file.Content[uint32(m):c.off]
}

// peekRune decodes the rune at the cursor; size 0 at end of input.
func (c *cursor) peekRune() (r rune, size int) {
	if c.eof() {
		return utf8.RuneError, 0
	}
	b := c.file.Content[c.off]
	if b < utf8.RuneSelf { // fast-path ASCII
		return rune(b), 1
	}
	return utf8.DecodeRune(c.file.Content[c.off:])
}

// bumpRune advances past the rune at the cursor.
func (c *cursor) bumpRune() {
	_, sz := c.peekRune()
	if sz == 0 {
		return
	}
	usz, err := safecast.Conv[uint32](sz)
	if err != nil {
		panic(fmt.Errorf("bumpRune overflow: %w", err))
	}
	c.off += usz
}
