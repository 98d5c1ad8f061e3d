// Package gcode runs servo scripts written as G-code, the format printer
// firmwares use for servo moves (M280/M281/M282 and G4 dwell).
package gcode

import (
	"errors"
	"fmt"
)

// ErrSyntax is returned for a line that cannot be tokenized
var ErrSyntax = errors.New("gcode: syntax error")

// Command is one parsed line
type Command struct {
	Type       byte             // 'G' or 'M'; zero for a comment-only line
	Number     int              // 280 for M280
	Parameters map[byte]float64 // Letter to value, letters upper-cased
	Comment    string           // Text from ';' or '('
}

// HasParameter reports whether the letter appeared on the line
func (c *Command) HasParameter(param byte) bool {
	_, ok := c.Parameters[param]
	return ok
}

// GetParameter returns the letter's value or def when absent
func (c *Command) GetParameter(param byte, def float64) float64 {
	if v, ok := c.Parameters[param]; ok {
		return v
	}
	return def
}

// String renders the command without its comment
func (c *Command) String() string {
	if c.Type == 0 {
		return c.Comment
	}
	return fmt.Sprintf("%c%d", c.Type, c.Number)
}

// Parser tokenizes G-code lines
type Parser struct{}

// NewParser creates a parser
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine parses one line. Blank lines return nil with no error.
func (p *Parser) ParseLine(line string) (*Command, error) {
	i := skipSpace(line, 0)
	if i >= len(line) {
		return nil, nil
	}

	cmd := &Command{Parameters: make(map[byte]float64)}
	if isComment(line[i]) {
		cmd.Comment = line[i:]
		return cmd, nil
	}

	switch toUpper(line[i]) {
	case 'G', 'M':
		cmd.Type = toUpper(line[i])
		num, next := parseInt(line, i+1)
		if next <= i+1 {
			return nil, fmt.Errorf("%w: %c without a number", ErrSyntax, cmd.Type)
		}
		cmd.Number = num
		i = next
	default:
		return nil, fmt.Errorf("%w: line starts with %q", ErrSyntax, line[i])
	}

	for {
		i = skipSpace(line, i)
		if i >= len(line) {
			break
		}
		if isComment(line[i]) {
			cmd.Comment = line[i:]
			break
		}
		if !isLetter(line[i]) {
			return nil, fmt.Errorf("%w: unexpected %q", ErrSyntax, line[i])
		}
		letter := toUpper(line[i])
		value, next := parseFloat(line, i+1)
		if next <= i+1 {
			return nil, fmt.Errorf("%w: %c without a value", ErrSyntax, letter)
		}
		cmd.Parameters[letter] = value
		i = next
	}
	return cmd, nil
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\r') {
		i++
	}
	return i
}

func isComment(c byte) bool {
	return c == ';' || c == '('
}

// parseInt reads an optionally signed integer. The returned position is
// pos when no digits were found.
func parseInt(s string, pos int) (int, int) {
	i := pos
	negative := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		negative = s[i] == '-'
		i++
	}
	start := i
	value := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		value = value*10 + int(s[i]-'0')
		i++
	}
	if i == start {
		return 0, pos
	}
	if negative {
		value = -value
	}
	return value, i
}

// parseFloat reads an optionally signed decimal. The returned position is
// pos when no digits were found.
func parseFloat(s string, pos int) (float64, int) {
	i := pos
	negative := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		negative = s[i] == '-'
		i++
	}

	digits := 0
	whole := 0.0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		whole = whole*10 + float64(s[i]-'0')
		i++
		digits++
	}
	frac, divisor := 0.0, 1.0
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			frac = frac*10 + float64(s[i]-'0')
			divisor *= 10
			i++
			digits++
		}
	}
	value := whole + frac/divisor
	if digits == 0 {
		return 0, pos
	}
	if negative {
		value = -value
	}
	return value, i
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
