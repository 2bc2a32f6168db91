package record

import "unicode"

// Split breaks line into whitespace-separated tokens, keeping whitespace that
// occurs inside a parenthesised span as part of the token. It stops once n
// tokens have been collected; n <= 0 means no bound.
//
// A line whose parentheses never balance, such as a process named "foo(",
// is split with splitLoose instead.
func Split(line string, n int) []string {
	capacity := n
	if capacity <= 0 {
		capacity = 16
	}
	tokens := make([]string, 0, capacity)

	depth := 0
	start := -1
	for i, r := range line {
		switch {
		case r == '(':
			depth++
		case r == ')':
			if depth > 0 {
				depth--
			}
		case unicode.IsSpace(r) && depth == 0:
			if start >= 0 {
				tokens = append(tokens, line[start:i])
				start = -1
				if n > 0 && len(tokens) == n {
					return tokens
				}
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if depth > 0 {
		return splitLoose(line, n)
	}
	if start >= 0 {
		tokens = append(tokens, line[start:])
	}
	return tokens
}

// splitLoose treats whitespace as a separator unless the next parenthesis
// after it is a closing one.
func splitLoose(line string, n int) []string {
	// closing[i] reports whether the first parenthesis at or after i is ')'.
	closing := make([]bool, len(line)+1)
	for i := len(line) - 1; i >= 0; i-- {
		switch line[i] {
		case '(':
			closing[i] = false
		case ')':
			closing[i] = true
		default:
			closing[i] = closing[i+1]
		}
	}

	var tokens []string
	start := -1
	for i, r := range line {
		if unicode.IsSpace(r) && !closing[i] {
			if start >= 0 {
				tokens = append(tokens, line[start:i])
				start = -1
				if n > 0 && len(tokens) == n {
					return tokens
				}
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, line[start:])
	}
	return tokens
}

// stripBrackets removes one pair of surrounding parentheses.
func stripBrackets(tok string) string {
	if len(tok) >= 2 && tok[0] == '(' && tok[len(tok)-1] == ')' {
		return tok[1 : len(tok)-1]
	}
	return tok
}
