// Package parser turns one line of REPL input into a wire protos.Command.
//
// A line is one bare keyword (BEGIN, COMMIT, ABORT) or a keyword
// followed by one or more double-quoted arguments (GET "key",
// PUT "key" "value"). Arguments are quoted, not bare words, so a PUT
// value may itself contain spaces.
package parser

import (
	"fmt"
	"strings"

	"lockkv/pkg/protos"
)

// Parser holds no state between calls; it exists so the REPL has a
// value to construct once and reuse.
type Parser struct{}

// NewParser returns a ready-to-use Parser.
func NewParser() *Parser { return &Parser{} }

// arity is how many quoted string arguments each command takes.
var arity = map[protos.CommandType]int{
	protos.Get:    1,
	protos.Put:    2,
	protos.Begin:  0,
	protos.Commit: 0,
	protos.Abort:  0,
}

// token is one lexical unit of a command line: the leading bare
// keyword, or a double-quoted argument.
type token struct {
	text   string
	quoted bool
	pos    int // byte offset of the token's first character
}

// Parse tokenizes input in a single left-to-right pass, then checks
// the token count and quoting against the arity the leading keyword
// requires.
func (p *Parser) Parse(input string) (*protos.Command, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	head := tokens[0]
	if head.quoted {
		return nil, fmt.Errorf("command keyword must not be quoted:\n%s", mark(input, head.pos))
	}
	cmdType := protos.ToCommandType(head.text)
	want, known := arity[cmdType]
	if !known {
		return nil, fmt.Errorf("unrecognized command %q:\n%s", head.text, mark(input, head.pos))
	}

	args := tokens[1:]
	if len(args) != want {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", head.text, want, len(args))
	}

	payload := make([]string, 0, want)
	for _, a := range args {
		if !a.quoted {
			return nil, fmt.Errorf("argument must be a quoted string:\n%s", mark(input, a.pos))
		}
		payload = append(payload, a.text)
	}

	return protos.NewCommand(cmdType, payload), nil
}

// tokenize splits input on runs of spaces into bare words and
// double-quoted strings. It reports an error on an unterminated quote
// or a bare word following the first token.
func tokenize(input string) ([]token, error) {
	var tokens []token
	i, n := 0, len(input)

	for i < n {
		for i < n && input[i] == ' ' {
			i++
		}
		if i >= n {
			break
		}

		start := i
		if input[i] == '"' {
			end := strings.IndexByte(input[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated quoted string:\n%s", mark(input, start))
			}
			closeAt := i + 1 + end
			tokens = append(tokens, token{text: input[i+1 : closeAt], quoted: true, pos: start})
			i = closeAt + 1
			continue
		}

		for i < n && input[i] != ' ' {
			i++
		}
		if len(tokens) > 0 {
			return nil, fmt.Errorf("expected a quoted argument, found bare word %q:\n%s", input[start:i], mark(input, start))
		}
		tokens = append(tokens, token{text: input[start:i], quoted: false, pos: start})
	}

	return tokens, nil
}

// mark renders input with a caret under byte offset pos.
func mark(input string, pos int) string {
	if pos > len(input) {
		pos = len(input)
	}
	return input + "\n" + strings.Repeat(" ", pos) + "^"
}
