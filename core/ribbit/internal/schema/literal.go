package schema

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// TimeFunc is a default evaluated when a row is inserted.
type TimeFunc string

// Time functions accepted as column defaults.
const (
	CurrentTimestamp TimeFunc = "CURRENT_TIMESTAMP"
	CurrentDate      TimeFunc = "CURRENT_DATE"
	CurrentTime      TimeFunc = "CURRENT_TIME"
)

// Layouts used to render the time functions.
const (
	TimestampLayout = "2006-01-02T15:04:05.000000"
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05"
)

// Eval renders the function for the given instant.
func (f TimeFunc) Eval(now time.Time) string {
	switch f {
	case CurrentDate:
		return now.Format(DateLayout)
	case CurrentTime:
		return now.Format(TimeLayout)
	}
	return now.Format(TimestampLayout)
}

// ParseTimeFunc reports whether name is one of the time functions.
func ParseTimeFunc(name string) (TimeFunc, bool) {
	switch f := TimeFunc(strings.ToUpper(name)); f {
	case CurrentTimestamp, CurrentDate, CurrentTime:
		return f, true
	}
	return "", false
}

//nolint:govet // participle grammar tags are not standard struct tags
type literalGrammar struct {
	Null   bool     `  @"NULL"`
	Bool   *string  `| @("TRUE" | "FALSE")`
	Func   *string  `| @("CURRENT_TIMESTAMP" | "CURRENT_DATE" | "CURRENT_TIME")`
	Blob   *string  `| @Blob`
	Float  *float64 `| @Float`
	Int    *int64   `| @Int`
	String *string  `| @String`
}

var literalLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Blob", Pattern: `[xX]'[0-9a-fA-F]*'`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Float", Pattern: `[-+]?(?:[0-9]+\.[0-9]*|\.[0-9]+)(?:[eE][-+]?[0-9]+)?|[-+]?[0-9]+[eE][-+]?[0-9]+`},
	{Name: "Int", Pattern: `[-+]?[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var literalParser = participle.MustBuild[literalGrammar](
	participle.Lexer(literalLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Ident"),
)

// ParseLiteral parses SQL literal text as written by FormatLiteral. The
// result is nil, int64, float64, string, []byte or a TimeFunc.
func ParseLiteral(s string) (any, error) {
	g, err := literalParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("invalid literal %q: %w", s, err)
	}
	switch {
	case g.Null:
		return nil, nil
	case g.Bool != nil:
		if strings.EqualFold(*g.Bool, "TRUE") {
			return int64(1), nil
		}
		return int64(0), nil
	case g.Func != nil:
		f, _ := ParseTimeFunc(*g.Func)
		return f, nil
	case g.Blob != nil:
		b, err := hex.DecodeString((*g.Blob)[2 : len(*g.Blob)-1])
		if err != nil {
			return nil, fmt.Errorf("invalid blob literal %q: %w", s, err)
		}
		return b, nil
	case g.Float != nil:
		return *g.Float, nil
	case g.Int != nil:
		return *g.Int, nil
	case g.String != nil:
		body := (*g.String)[1 : len(*g.String)-1]
		return strings.ReplaceAll(body, "''", "'"), nil
	}
	return nil, fmt.Errorf("invalid literal %q", s)
}

// FormatLiteral renders v as SQL literal text that ParseLiteral reads back
// to the same value and type.
func FormatLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case TimeFunc:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsInf(x, 0) || math.IsNaN(x) {
			return quote(strconv.FormatFloat(x, 'g', -1, 64))
		}
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case string:
		return quote(x)
	case []byte:
		return "x'" + hex.EncodeToString(x) + "'"
	}
	return quote(fmt.Sprint(v))
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
