package nvptx

import "strings"

// findAndReplace replaces the region starting at the first occurrence of
// begin and running through the first subsequent occurrence of end
// (inclusive) with repl. It reports whether a replacement happened.
func findAndReplace(s, begin, end, repl string) (string, bool) {
	i := strings.Index(s, begin)
	if i < 0 {
		return s, false
	}
	j := strings.Index(s[i:], end)
	if j < 0 {
		j = len(s) - i
	} else {
		j += len(end)
	}
	return s[:i] + repl + s[i+j:], true
}

// rewriteModuleDirectives swaps the ".version" and ".target" directive lines
// for ones carrying the caller's requested PTX ISA version and architecture
// tag. The code generator may have targeted lower values internally; the
// emitted metadata always advertises the requested ones.
func rewriteModuleDirectives(text string, ptx int, sm string) string {
	text, _ = findAndReplace(text, ".version", "\n", ".version "+DialectString(ptx)+"\n")
	text, _ = findAndReplace(text, ".target", "\n", ".target "+sm+"\n")
	return text
}

// stripInlineAsmMarkers removes every inline-assembly begin/end marker
// comment line. ptxas rejects the markers; the assembly between them is kept
// untouched.
func stripInlineAsmMarkers(text string) string {
	for {
		var ok bool
		text, ok = findAndReplace(text, "\t// begin inline asm", "\n", "")
		if !ok {
			break
		}
	}
	for {
		var ok bool
		text, ok = findAndReplace(text, "\t// end inline asm", "\n", "")
		if !ok {
			break
		}
	}
	return text
}
