package expand

import (
	"path/filepath"
	"strings"
)

// splitTemplateName splits a template base name into the stem that tags get
// appended to and the extension generated units keep. A trailing ".in"
// marks the file as a template and is dropped first:
//
//	martdp.cc.in -> ("martdp", ".cc")
//	solver.hpp   -> ("solver", ".hpp")
//	Makefile.in  -> ("Makefile", "")
func splitTemplateName(base string) (stem, ext string) {
	base = strings.TrimSuffix(base, ".in")
	ext = filepath.Ext(base)
	return base[:len(base)-len(ext)], ext
}
