package schema

import "strings"

// SplitStatements breaks a script produced by Script or BaseScript back
// into statements. A statement ends at a line whose last non-space
// character is ';'. Blank lines and "--" comment lines are dropped.
func SplitStatements(script string) []string {
	var (
		stmts []string
		buf   []string
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		buf = append(buf, strings.TrimRight(line, " \t\r"))
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.Join(buf, "\n"))
			buf = buf[:0]
		}
	}
	if len(buf) > 0 {
		stmts = append(stmts, strings.Join(buf, "\n"))
	}
	return stmts
}
