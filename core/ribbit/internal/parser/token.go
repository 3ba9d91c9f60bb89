// Package parser implements SQL tokenization and parsing for RibbitDB.
//
// The grammar is a deliberately small subset. WHERE and HAVING take a flat
// chain of conditions joined by AND/OR that is evaluated strictly left to
// right; there is no precedence and no parenthesized grouping.
package parser

import (
	"fmt"
	"strings"
)

// TokenType is the lexical class of a token.
type TokenType int

// Token classes
const (
	TK_EOF TokenType = iota
	TK_ILLEGAL
	TK_COMMENT

	TK_KEYWORD
	TK_ID
	TK_STRING
	TK_BLOB // x'hex'
	TK_NUMBER
	TK_SYMBOL   // ( ) , ; = < > ! .
	TK_OPERATOR // <= >= != <>
	TK_STAR
	TK_PARAM // ?
)

// Token is a lexical token with its position in the source.
type Token struct {
	Type   TokenType // Token class
	Lexeme string    // Raw text of the token
	Value  string    // Upper-cased keyword, unescaped string, otherwise the lexeme
	Pos    int       // Byte offset in source
	Line   int       // Line number (1-based)
	Col    int       // Column number (1-based)
}

// String returns a string representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TK_EOF:
		return "EOF"
	case TK_ILLEGAL:
		return "ILLEGAL"
	case TK_COMMENT:
		return "COMMENT"
	case TK_KEYWORD:
		return "KEYWORD"
	case TK_ID:
		return "IDENTIFIER"
	case TK_STRING:
		return "STRING"
	case TK_BLOB:
		return "BLOB"
	case TK_NUMBER:
		return "NUMBER"
	case TK_SYMBOL:
		return "SYMBOL"
	case TK_OPERATOR:
		return "OPERATOR"
	case TK_STAR:
		return "STAR"
	case TK_PARAM:
		return "PARAMETER"
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// describe renders a token for error messages.
func (t Token) describe() string {
	switch t.Type {
	case TK_EOF:
		return "end of input"
	case TK_STRING:
		return "string " + t.Lexeme
	}
	return "'" + t.Lexeme + "'"
}

// keywords lists every reserved and non-reserved keyword.
var keywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "INSERT": true, "INTO": true,
	"VALUES": true, "UPDATE": true, "SET": true, "DELETE": true,
	"CREATE": true, "TABLE": true, "INDEX": true, "VIEW": true, "TRIGGER": true,
	"DROP": true, "ALTER": true, "RENAME": true, "TO": true, "ADD": true, "COLUMN": true,
	"IF": true, "NOT": true, "EXISTS": true, "PRIMARY": true, "KEY": true,
	"AUTOINCREMENT": true, "UNIQUE": true, "NULL": true, "DEFAULT": true,
	"CHECK": true, "REFERENCES": true, "FOREIGN": true, "CONSTRAINT": true,
	"AND": true, "OR": true, "LIKE": true, "IN": true, "BETWEEN": true, "IS": true,
	"AS": true, "ON": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"OUTER": true, "ORDER": true, "BY": true, "ASC": true, "DESC": true,
	"GROUP": true, "HAVING": true, "LIMIT": true, "OFFSET": true, "DISTINCT": true,
	"ALL": true, "UNION": true, "BEGIN": true, "TRANSACTION": true, "COMMIT": true,
	"ROLLBACK": true, "SAVEPOINT": true, "RELEASE": true, "PRAGMA": true,
	"DESCRIBE": true, "SHOW": true, "TABLES": true, "INDEXES": true, "EXPLAIN": true,
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
	"CURRENT_TIMESTAMP": true, "CURRENT_DATE": true, "CURRENT_TIME": true,
	"TRUE": true, "FALSE": true,
}

// reserved keywords can never be used as bare identifiers. Every other
// keyword doubles as a table or column name.
var reserved = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "INSERT": true, "INTO": true,
	"VALUES": true, "UPDATE": true, "SET": true, "DELETE": true, "CREATE": true,
	"TABLE": true, "DROP": true, "ALTER": true, "NOT": true, "NULL": true,
	"AND": true, "OR": true, "LIKE": true, "IN": true, "BETWEEN": true, "IS": true,
	"AS": true, "ON": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"OUTER": true, "ORDER": true, "BY": true, "GROUP": true, "HAVING": true,
	"LIMIT": true, "OFFSET": true, "DISTINCT": true, "UNION": true,
	"DEFAULT": true, "PRIMARY": true, "UNIQUE": true, "CHECK": true,
	"REFERENCES": true, "FOREIGN": true, "CONSTRAINT": true,
}

// IsKeyword reports whether word is a keyword in any case.
func IsKeyword(word string) bool {
	return keywords[strings.ToUpper(word)]
}
