package parser

import (
	"strings"
)

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // current reading position (after current char)
	ch      byte // current char under examination
	line    int  // current line number
	col     int  // current column number
}

// NewLexer creates a new Lexer for the given SQL input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character and advances position.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.col++
}

// peekChar returns the next character without advancing position.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	tok := Token{Pos: l.pos, Line: l.line, Col: l.col}

	if l.atEOF() {
		tok.Type = TK_EOF
		return tok
	}

	switch l.ch {
	case '(', ')', ',', ';', '.':
		if l.ch == '.' && isDigit(l.peekChar()) {
			return l.readNumber()
		}
		return l.single(tok, TK_SYMBOL)
	case '*':
		return l.single(tok, TK_STAR)
	case '?':
		return l.single(tok, TK_PARAM)
	case '=':
		return l.single(tok, TK_SYMBOL)
	case '<':
		if l.peekChar() == '=' || l.peekChar() == '>' {
			return l.double(tok)
		}
		return l.single(tok, TK_SYMBOL)
	case '>', '!':
		if l.peekChar() == '=' {
			return l.double(tok)
		}
		return l.single(tok, TK_SYMBOL)
	case '-':
		if l.peekChar() == '-' {
			return l.readLineComment()
		}
		if isDigit(l.peekChar()) || (l.peekChar() == '.' && isDigit(l.peekAhead(2))) {
			return l.readNumber()
		}
		return l.single(tok, TK_ILLEGAL)
	case '/':
		if l.peekChar() == '*' {
			return l.readBlockComment()
		}
		return l.single(tok, TK_ILLEGAL)
	case '\'', '"':
		return l.readString(l.ch)
	case '`':
		return l.readQuotedIdentifier('`')
	}

	if (l.ch == 'x' || l.ch == 'X') && l.peekChar() == '\'' {
		return l.readBlob()
	}
	if isLetter(l.ch) || l.ch == '_' {
		return l.readIdentifierOrKeyword()
	}
	if isDigit(l.ch) {
		return l.readNumber()
	}
	return l.single(tok, TK_ILLEGAL)
}

// peekAhead returns the character n positions ahead without advancing.
func (l *Lexer) peekAhead(n int) byte {
	pos := l.readPos + n - 1
	if pos >= len(l.input) {
		return 0
	}
	return l.input[pos]
}

func (l *Lexer) single(tok Token, typ TokenType) Token {
	tok.Type = typ
	tok.Lexeme = string(l.ch)
	tok.Value = tok.Lexeme
	l.readChar()
	return tok
}

// double reads a two-character operator.
func (l *Lexer) double(tok Token) Token {
	tok.Type = TK_OPERATOR
	tok.Lexeme = l.input[l.pos : l.pos+2]
	tok.Value = tok.Lexeme
	l.readChar()
	l.readChar()
	return tok
}

// skipWhitespace skips whitespace characters and updates line/col tracking.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' || l.ch == '\f' {
		l.newline()
		l.readChar()
	}
}

// newline bumps the line counter when the current char is a newline. The
// following readChar moves the column to 1.
func (l *Lexer) newline() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
}

// readIdentifierOrKeyword reads an identifier or keyword.
func (l *Lexer) readIdentifierOrKeyword() Token {
	tok := Token{Pos: l.pos, Line: l.line, Col: l.col}

	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '$' {
		l.readChar()
	}

	tok.Lexeme = l.input[tok.Pos:l.pos]
	if up := strings.ToUpper(tok.Lexeme); keywords[up] {
		tok.Type = TK_KEYWORD
		tok.Value = up
	} else {
		tok.Type = TK_ID
		tok.Value = tok.Lexeme
	}
	return tok
}

// readNumber reads a numeric literal. A leading '-' is part of the number.
func (l *Lexer) readNumber() Token {
	tok := Token{Type: TK_NUMBER, Pos: l.pos, Line: l.line, Col: l.col}

	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && (isDigit(l.peekChar()) || l.pos > tok.Pos) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if (l.ch == 'e' || l.ch == 'E') &&
		(isDigit(l.peekChar()) || ((l.peekChar() == '+' || l.peekChar() == '-') && isDigit(l.peekAhead(2)))) {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	tok.Lexeme = l.input[tok.Pos:l.pos]
	tok.Value = tok.Lexeme
	return tok
}

// readString reads a quoted string. Backslash escapes and doubled quotes
// are decoded into Value; an unterminated string runs to end of input.
func (l *Lexer) readString(quote byte) Token {
	tok := Token{Type: TK_STRING, Pos: l.pos, Line: l.line, Col: l.col}
	var sb strings.Builder

	l.readChar() // consume opening quote
	for !l.atEOF() {
		if l.ch == '\\' && l.readPos < len(l.input) {
			l.readChar()
			sb.WriteString(unescape(l.ch))
			l.readChar()
			continue
		}
		if l.ch == quote {
			if l.peekChar() == quote {
				sb.WriteByte(quote)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // consume closing quote
			break
		}
		sb.WriteByte(l.ch)
		l.newline()
		l.readChar()
	}

	tok.Lexeme = l.input[tok.Pos:l.pos]
	tok.Value = sb.String()
	return tok
}

// readBlob reads a hex blob literal. Value holds the hex digits.
func (l *Lexer) readBlob() Token {
	tok := Token{Type: TK_BLOB, Pos: l.pos, Line: l.line, Col: l.col}

	l.readChar() // consume 'x'
	l.readChar() // consume quote
	start := l.pos
	for !l.atEOF() && l.ch != '\'' {
		l.readChar()
	}
	tok.Value = l.input[start:l.pos]
	if l.ch == '\'' {
		l.readChar()
	}
	tok.Lexeme = l.input[tok.Pos:l.pos]
	return tok
}

func unescape(ch byte) string {
	switch ch {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '0':
		return "\x00"
	case '\\', '\'', '"':
		return string(ch)
	}
	return "\\" + string(ch)
}

// readQuotedIdentifier reads a backticked identifier.
func (l *Lexer) readQuotedIdentifier(quote byte) Token {
	tok := Token{Type: TK_ID, Pos: l.pos, Line: l.line, Col: l.col}

	l.readChar() // consume opening quote
	start := l.pos
	for !l.atEOF() && l.ch != quote {
		l.newline()
		l.readChar()
	}
	tok.Value = l.input[start:l.pos]
	if l.ch == quote {
		l.readChar() // consume closing quote
	}
	tok.Lexeme = l.input[tok.Pos:l.pos]
	return tok
}

// readLineComment reads a line comment (-- ...).
func (l *Lexer) readLineComment() Token {
	tok := Token{Type: TK_COMMENT, Pos: l.pos, Line: l.line, Col: l.col}

	for !l.atEOF() && l.ch != '\n' {
		l.readChar()
	}

	tok.Lexeme = l.input[tok.Pos:l.pos]
	return tok
}

// readBlockComment reads a block comment (/* ... */). An unterminated
// comment runs to end of input.
func (l *Lexer) readBlockComment() Token {
	tok := Token{Type: TK_COMMENT, Pos: l.pos, Line: l.line, Col: l.col}

	l.readChar() // consume '/'
	l.readChar() // consume '*'
	for !l.atEOF() {
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar()
			l.readChar()
			break
		}
		l.newline()
		l.readChar()
	}

	tok.Lexeme = l.input[tok.Pos:l.pos]
	return tok
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// Tokenize returns every token of input except comments, ending with EOF.
// It stops at the first illegal character and returns it as the last
// token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == TK_COMMENT {
			continue
		}
		tokens = append(tokens, tok)
		if tok.Type == TK_EOF || tok.Type == TK_ILLEGAL {
			return tokens
		}
	}
}

// QuoteString renders s as a string literal that the lexer reads back
// unchanged.
func QuoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
