package markdown

import (
	"strings"

	"github.com/gosimple/unidecode"
)

// Ext is the extension of page files.
const Ext = ".md"

// Filename derives the file name of a page: ASCII transliteration, lower
// case, spaces replaced by underscores, ".md" appended.
func Filename(heading string) string {
	name := strings.ToLower(unidecode.Unidecode(heading))
	return strings.ReplaceAll(name, " ", "_") + Ext
}
