package parser

import "strings"

// DefaultPreviewWidth is the truncation width used in finding messages.
const DefaultPreviewWidth = 80

// Preview renders a statement for display: comments stripped, whitespace
// runs collapsed, truncated at width with a trailing ellipsis.
func Preview(sql string, width int) string {
	if width <= 0 {
		width = DefaultPreviewWidth
	}

	cleaned := collapseWhitespace(stripComments(sql))
	if len(cleaned) <= width {
		return cleaned
	}
	return cleaned[:width] + "..."
}

// stripComments removes block and line comments. Quoted strings are left
// intact so a literal containing "--" survives.
func stripComments(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))

	for i := 0; i < len(sql); {
		switch {
		case sql[i] == '\'':
			// String literal: copy until the closing quote, honouring ''.
			j := i + 1
			for j < len(sql) {
				if sql[j] == '\'' {
					if j+1 < len(sql) && sql[j+1] == '\'' {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			b.WriteString(sql[i:j])
			i = j
		case strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += 2 + end + 2
		case strings.HasPrefix(sql[i:], "--"):
			nl := strings.IndexByte(sql[i:], '\n')
			if nl < 0 {
				return b.String()
			}
			i += nl
		default:
			b.WriteByte(sql[i])
			i++
		}
	}

	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
