package extract

import "strings"

// The ORM extractors parse JavaScript/TypeScript migration sources with a
// hand-written token scanner: TypeScript type annotations defeat the
// available ES parsers, and the extraction patterns only need token-level
// structure (identifiers, literals, balanced brackets).

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString   // '...' or "..." with escapes decoded
	tokTemplate // `...`; Text holds the raw body, HasInterp marks ${}
	tokNumber
	tokPunct
)

type token struct {
	Kind      tokenKind
	Text      string
	HasInterp bool
	Line, Col int
}

// scanTokens tokenizes a JS/TS source. Comments and whitespace are
// dropped; line/column positions are preserved for warnings.
func scanTokens(src string) []token {
	var toks []token
	line, col := 1, 1

	advance := func(s string) {
		for _, r := range s {
			if r == '\n' {
				line++
				col = 1
			} else {
				col++
			}
		}
	}

	i := 0
	for i < len(src) {
		c := src[i]

		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			advance(src[i : i+1])
			i++

		case strings.HasPrefix(src[i:], "//"):
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = len(src) - i
			}
			advance(src[i : i+end])
			i += end

		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			next := i + 2 + end + 2
			if end < 0 || next > len(src) {
				next = len(src)
			}
			advance(src[i:next])
			i = next

		case c == '\'' || c == '"':
			start, startLine, startCol := i, line, col
			i++
			var b strings.Builder
			for i < len(src) && src[i] != c {
				if src[i] == '\\' && i+1 < len(src) {
					b.WriteByte(unescape(src[i+1]))
					i += 2
					continue
				}
				b.WriteByte(src[i])
				i++
			}
			if i < len(src) {
				i++ // closing quote
			}
			advance(src[start:i])
			toks = append(toks, token{Kind: tokString, Text: b.String(), Line: startLine, Col: startCol})

		case c == '`':
			start, startLine, startCol := i, line, col
			i++
			var b strings.Builder
			hasInterp := false
			for i < len(src) && src[i] != '`' {
				if src[i] == '\\' && i+1 < len(src) {
					b.WriteByte(unescape(src[i+1]))
					i += 2
					continue
				}
				if strings.HasPrefix(src[i:], "${") {
					hasInterp = true
					depth := 1
					j := i + 2
					for j < len(src) && depth > 0 {
						switch src[j] {
						case '{':
							depth++
						case '}':
							depth--
						}
						j++
					}
					b.WriteString(src[i:j])
					i = j
					continue
				}
				b.WriteByte(src[i])
				i++
			}
			if i < len(src) {
				i++ // closing backtick
			}
			advance(src[start:i])
			toks = append(toks, token{Kind: tokTemplate, Text: b.String(), HasInterp: hasInterp, Line: startLine, Col: startCol})

		case isIdentStart(c):
			start, startLine, startCol := i, line, col
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			advance(src[start:i])
			toks = append(toks, token{Kind: tokIdent, Text: src[start:i], Line: startLine, Col: startCol})

		case c >= '0' && c <= '9':
			start, startLine, startCol := i, line, col
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.' || src[i] == 'e' || src[i] == 'E' || src[i] == 'x' || src[i] == '_') {
				i++
			}
			advance(src[start:i])
			toks = append(toks, token{Kind: tokNumber, Text: src[start:i], Line: startLine, Col: startCol})

		default:
			toks = append(toks, token{Kind: tokPunct, Text: string(c), Line: line, Col: col})
			advance(src[i : i+1])
			i++
		}
	}

	toks = append(toks, token{Kind: tokEOF, Line: line, Col: col})
	return toks
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '$'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

// matchBracket returns the index of the token closing the bracket at open
// ("(", "{", "["), or -1.
func matchBracket(toks []token, open int) int {
	if open >= len(toks) || toks[open].Kind != tokPunct {
		return -1
	}
	var closer string
	switch toks[open].Text {
	case "(":
		closer = ")"
	case "{":
		closer = "}"
	case "[":
		closer = "]"
	default:
		return -1
	}
	opener := toks[open].Text

	depth := 0
	for i := open; i < len(toks); i++ {
		if toks[i].Kind != tokPunct {
			continue
		}
		switch toks[i].Text {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// isPunct reports whether the token at i is the given punctuation.
func isPunct(toks []token, i int, text string) bool {
	return i < len(toks) && toks[i].Kind == tokPunct && toks[i].Text == text
}

// isIdent reports whether the token at i is the given identifier.
func isIdent(toks []token, i int, text string) bool {
	return i < len(toks) && toks[i].Kind == tokIdent && toks[i].Text == text
}

// conditionalDepths computes, per token, how many conditional constructs
// (if/else-if bodies, switch cases, ternaries) enclose it. Lifted SQL at a
// depth above zero may or may not execute at runtime.
func conditionalDepths(toks []token) []int {
	depths := make([]int, len(toks))

	mark := func(start, end int) {
		if start < 0 || end < 0 || end <= start {
			return
		}
		for i := start; i <= end && i < len(depths); i++ {
			depths[i]++
		}
	}

	for i := 0; i < len(toks); i++ {
		switch {
		case isIdent(toks, i, "if") && isPunct(toks, i+1, "("):
			condEnd := matchBracket(toks, i+1)
			if condEnd < 0 {
				continue
			}
			mark(bodyRange(toks, condEnd+1))

		case isIdent(toks, i, "else"):
			// else-if is covered by the "if" case; a bare else block is
			// conditional too.
			if isIdent(toks, i+1, "if") {
				continue
			}
			mark(bodyRange(toks, i+1))

		case isIdent(toks, i, "case") || isIdent(toks, i, "default"):
			// Conditional until the next case/default or the end of the
			// switch body.
			end := i + 1
			depth := 0
			for ; end < len(toks); end++ {
				if toks[end].Kind == tokPunct {
					switch toks[end].Text {
					case "{":
						depth++
					case "}":
						if depth == 0 {
							goto done
						}
						depth--
					}
				}
				if depth == 0 && (isIdent(toks, end, "case") || isIdent(toks, end, "default")) && end > i {
					break
				}
			}
		done:
			mark(i, end-1)

		case isPunct(toks, i, "?") && !isPunct(toks, i+1, "."):
			// Ternary: conditional until the end of the expression
			// (statement terminator or unbalanced closer).
			end := i + 1
			depth := 0
			for ; end < len(toks); end++ {
				if toks[end].Kind != tokPunct {
					continue
				}
				switch toks[end].Text {
				case "(", "[", "{":
					depth++
				case ")", "]", "}":
					if depth == 0 {
						goto ternDone
					}
					depth--
				case ";", ",":
					if depth == 0 {
						goto ternDone
					}
				}
			}
		ternDone:
			mark(i, end-1)
		}
	}

	return depths
}

// bodyRange resolves the statement or block starting at i: a braced block
// spans to its matching brace, otherwise to the next semicolon.
func bodyRange(toks []token, i int) (int, int) {
	if isPunct(toks, i, "{") {
		return i, matchBracket(toks, i)
	}
	for j := i; j < len(toks); j++ {
		if isPunct(toks, j, ";") {
			return i, j
		}
	}
	return i, len(toks) - 1
}
