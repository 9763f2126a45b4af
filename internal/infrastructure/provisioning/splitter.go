package provisioning

import "strings"

// SplitStatements splits a SQL script into executable statements.
// Semicolons inside single or double quoted strings or behind a line
// comment do not terminate a statement, and backslash escapes inside
// strings are honored. Statements that contain only comments or
// whitespace are dropped.
func SplitStatements(script string) []string {
	var statements []string
	var current strings.Builder

	inString := false
	inComment := false
	var stringChar byte

	for i := 0; i < len(script); i++ {
		ch := script[i]

		if inComment {
			current.WriteByte(ch)
			if ch == '\n' {
				inComment = false
			}
			continue
		}

		if inString {
			current.WriteByte(ch)
			if ch == '\\' && i+1 < len(script) {
				// Escaped character, consume it as part of the string
				i++
				current.WriteByte(script[i])
				continue
			}
			if ch == stringChar {
				inString = false
			}
			continue
		}

		switch ch {
		case '\'', '"':
			inString = true
			stringChar = ch
			current.WriteByte(ch)
		case '-':
			if i+1 < len(script) && script[i+1] == '-' {
				inComment = true
			}
			current.WriteByte(ch)
		case ';':
			if stmt := normalizeStatement(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}

	if stmt := normalizeStatement(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}

	return statements
}

// normalizeStatement trims a raw statement and returns "" when nothing
// executable remains after removing comment-only lines
func normalizeStatement(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	hasExecutable := false
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		hasExecutable = true
		break
	}
	if !hasExecutable {
		return ""
	}

	return trimmed
}
