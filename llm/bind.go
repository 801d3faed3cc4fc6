package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var flaskAppPattern = regexp.MustCompile(`(?m)^\s*([A-Za-z_]\w*)\s*=\s*(?:flask\.)?Flask\(`)

// EnsureBind rewrites the generated app so it listens on host:port. It
// returns the possibly rewritten source and whether anything changed.
// Sources it cannot recognize are returned untouched.
func EnsureBind(source, host string, port int, language string) (string, bool) {
	switch language {
	case "python":
		return ensurePythonBind(source, host, port)
	case "nodejs":
		return ensureNodeBind(source, host, port)
	default:
		return source, false
	}
}

func ensurePythonBind(source, host string, port int) (string, bool) {
	names := flaskAppPattern.FindAllStringSubmatch(source, -1)
	if len(names) == 0 {
		return source, false
	}

	want := fmt.Sprintf("host='%s', port=%d", host, port)
	changed := false
	found := false
	for _, m := range names {
		out, n, rewritten := rewriteCalls(source, m[1]+".run(", func(args string) (string, bool) {
			if pythonBindsTo(args, host, port) {
				return args, false
			}
			return want, true
		})
		source = out
		found = found || n > 0
		changed = changed || rewritten
	}

	if !found {
		source = strings.TrimRight(source, "\n") +
			fmt.Sprintf("\n\nif __name__ == '__main__':\n    %s.run(%s)\n", names[0][1], want)
		changed = true
	}
	return source, changed
}

func pythonBindsTo(args, host string, port int) bool {
	compact := strings.ReplaceAll(args, " ", "")
	hostOK := strings.Contains(compact, "host='"+host+"'") || strings.Contains(compact, `host="`+host+`"`)
	portOK := regexp.MustCompile(`port=` + strconv.Itoa(port) + `\b`).MatchString(compact)
	return hostOK && portOK && !strings.Contains(compact, "debug=True")
}

func ensureNodeBind(source, host string, port int) (string, bool) {
	out, _, changed := rewriteCalls(source, ".listen(", func(args string) (string, bool) {
		parts := splitArgs(args)
		if len(parts) >= 2 &&
			strings.TrimSpace(parts[0]) == strconv.Itoa(port) &&
			strings.Trim(strings.TrimSpace(parts[1]), `'"`) == host {
			return args, false
		}
		rewritten := fmt.Sprintf("%d, '%s'", port, host)
		if len(parts) > 0 {
			if last := strings.TrimSpace(parts[len(parts)-1]); strings.Contains(last, "=>") || strings.HasPrefix(last, "function") {
				rewritten += ", " + last
			}
		}
		return rewritten, true
	})
	return out, changed
}

// rewriteCalls finds every occurrence of prefix (which ends with the opening
// parenthesis), passes the balanced argument text to fn and splices the
// result back. It reports how many calls were seen and whether any changed.
func rewriteCalls(source, prefix string, fn func(args string) (string, bool)) (string, int, bool) {
	var b strings.Builder
	seen := 0
	changed := false
	rest := source
	for {
		i := strings.Index(rest, prefix)
		if i < 0 {
			b.WriteString(rest)
			return b.String(), seen, changed
		}
		// Skip matches that are part of a longer identifier, e.g. myapp.run( for app.
		if prefix[0] != '.' && i > 0 && isIdentByte(rest[i-1]) {
			b.WriteString(rest[:i+len(prefix)])
			rest = rest[i+len(prefix):]
			continue
		}

		argsStart := i + len(prefix)
		argsEnd := matchParen(rest, argsStart)
		if argsEnd < 0 {
			b.WriteString(rest)
			return b.String(), seen, changed
		}
		seen++
		args, rewritten := fn(rest[argsStart:argsEnd])
		changed = changed || rewritten
		b.WriteString(rest[:argsStart])
		b.WriteString(args)
		b.WriteByte(')')
		rest = rest[argsEnd+1:]
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// matchParen returns the index of the parenthesis closing the call whose
// arguments start at from, or -1.
func matchParen(s string, from int) int {
	depth := 0
	var quote byte
	for i := from; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth == 0 {
				if c == ')' {
					return i
				}
				return -1
			}
			depth--
		}
	}
	return -1
}

// splitArgs splits a call's argument text on top-level commas.
func splitArgs(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(args); i++ {
		c := args[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, args[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, args[start:])
}
