package dispatch

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/typemap"
)

func fn(name string) RenderFunc {
	return func(args []Arg) (string, error) {
		return name + "(" + joinArgs(args) + ")", nil
	}
}

func joinArgs(args []Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Text
	}
	return strings.Join(parts, ", ")
}

func registerStringMethods(m map[Key]Method) {
	s := func(name string) Key { return Key{Declaring: expr.DeclString, Name: name} }

	m[s("ToUpper")] = def(1, 1, returns[string](), fn("UCASE"))
	m[s("ToLower")] = def(1, 1, returns[string](), fn("LCASE"))
	m[s("Trim")] = def(1, 1, returns[string](), fn("TRIM"))
	m[s("TrimStart")] = def(1, 1, returns[string](), fn("LTRIM"))
	m[s("TrimEnd")] = def(1, 1, returns[string](), fn("RTRIM"))
	m[s("Substring")] = def(2, 3, returns[string](), renderSubstring)
	m[s("Contains")] = def(2, 2, returns[bool](), likePattern(true, true))
	m[s("StartsWith")] = def(2, 2, returns[bool](), likePattern(false, true))
	m[s("EndsWith")] = def(2, 2, returns[bool](), likePattern(true, false))
	m[s("IndexOf")] = def(2, 2, returns[int](), func(args []Arg) (string, error) {
		return "(INSTR(" + args[0].Text + ", " + args[1].Text + ") - 1)", nil
	})
	m[s("Replace")] = def(3, 3, returns[string](), fn("REPLACE"))
	m[s("Length")] = def(1, 1, returns[int](), fn("LEN"))

	m[s("IsNullOrEmpty")] = def(1, 1, returns[bool](), func(args []Arg) (string, error) {
		x := args[0].Text
		return "(" + x + " IS NULL OR " + x + " = '')", nil
	})
	m[s("IsNullOrWhiteSpace")] = def(1, 1, returns[bool](), func(args []Arg) (string, error) {
		x := args[0].Text
		return "(" + x + " IS NULL OR TRIM(" + x + ") = '')", nil
	})
	m[s("Concat")] = def(1, -1, returns[string](), fn("CONCAT"))
}

// renderSubstring shifts the 0-based start to KSQL's 1-based offset, folding
// integer literals.
func renderSubstring(args []Arg) (string, error) {
	start := "(" + args[1].Text + " + 1)"
	if n, ok := intValue(args[1]); ok {
		start = strconv.FormatInt(n+1, 10)
	}
	out := "SUBSTRING(" + args[0].Text + ", " + start
	if len(args) == 3 {
		out += ", " + args[2].Text
	}
	return out + ")", nil
}

func likePattern(leading, trailing bool) RenderFunc {
	return func(args []Arg) (string, error) {
		subject, needle := args[0].Text, args[1]
		if v, ok := needle.Value.(string); ok && needle.Literal {
			if strings.ContainsAny(v, "%_") {
				return literalMatch(subject, v, leading, trailing), nil
			}
			p := v
			if leading {
				p = "%" + p
			}
			if trailing {
				p += "%"
			}
			return subject + " LIKE " + typemap.Quote(p), nil
		}
		parts := make([]string, 0, 3)
		if leading {
			parts = append(parts, "'%'")
		}
		parts = append(parts, needle.Text)
		if trailing {
			parts = append(parts, "'%'")
		}
		return subject + " LIKE CONCAT(" + strings.Join(parts, ", ") + ")", nil
	}
}

// literalMatch compares without LIKE, for needles holding wildcard characters.
func literalMatch(subject, needle string, leading, trailing bool) string {
	quoted := typemap.Quote(needle)
	switch {
	case leading && trailing:
		return "INSTR(" + subject + ", " + quoted + ") > 0"
	case trailing:
		return "INSTR(" + subject + ", " + quoted + ") = 1"
	}
	n := strconv.Itoa(utf8.RuneCountInString(needle))
	return "(LEN(" + subject + ") >= " + n + " AND SUBSTRING(" + subject + ", LEN(" + subject + ") - " + n + " + 1) = " + quoted + ")"
}

func intValue(a Arg) (int64, bool) {
	if !a.Literal || a.Value == nil {
		return 0, false
	}
	rv := reflect.ValueOf(a.Value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint()), true
	}
	return 0, false
}

var dateUnits = map[string]string{
	"AddMilliseconds": "MILLISECONDS",
	"AddSeconds":      "SECONDS",
	"AddMinutes":      "MINUTES",
	"AddHours":        "HOURS",
	"AddDays":         "DAYS",
	"AddMonths":       "MONTHS",
	"AddYears":        "YEARS",
}

func registerDateTimeMethods(m map[Key]Method) {
	for name, unit := range dateUnits {
		m[Key{Declaring: expr.DeclDateTime, Name: name}] = def(2, 2, returns[time.Time](), func(args []Arg) (string, error) {
			return "TIMESTAMPADD(" + unit + ", " + args[1].Text + ", " + args[0].Text + ")", nil
		})
	}
}

func registerMathMethods(m map[Key]Method) {
	k := func(name string) Key { return Key{Declaring: expr.DeclMath, Name: name} }

	m[k("Abs")] = def(1, 1, returnsArg(0), fn("ABS"))
	m[k("Ceiling")] = def(1, 1, returnsArg(0), fn("CEIL"))
	m[k("Floor")] = def(1, 1, returnsArg(0), fn("FLOOR"))
	m[k("Round")] = def(1, 2, returnsArg(0), fn("ROUND"))
	m[k("Pow")] = def(2, 2, returns[float64](), fn("POWER"))
	m[k("Sqrt")] = def(1, 1, returns[float64](), fn("SQRT"))
}

func registerEnumerableMethods(m map[Key]Method) {
	k := func(name string) Key { return Key{Declaring: expr.DeclEnumerable, Name: name} }

	m[k("Contains")] = def(2, 2, returns[bool](), renderContains)
	m[k("Count")] = def(1, 2, returns[int64](), renderCount)
	m[k("LongCount")] = def(1, 2, returns[int64](), renderCount)
	m[k("Sum")] = def(2, 2, returnsArg(1), aggregate("SUM"))
	m[k("Min")] = def(2, 2, returnsArg(1), aggregate("MIN"))
	m[k("Max")] = def(2, 2, returnsArg(1), aggregate("MAX"))
	m[k("Average")] = def(2, 2, returns[float64](), aggregate("AVG"))
}

// renderContains takes the collection first and the probed value second.
// Literal collections keep source order and duplicates.
func renderContains(args []Arg) (string, error) {
	coll, value := args[0], args[1]
	if coll.IsList {
		if len(coll.List) == 0 {
			return "1=0", nil
		}
		return value.Text + " IN (" + strings.Join(coll.List, ", ") + ")", nil
	}
	return value.Text + " IN " + coll.Text, nil
}

func renderCount(args []Arg) (string, error) {
	if len(args) == 1 {
		return "COUNT(*)", nil
	}
	return "COUNT(" + args[1].Text + ")", nil
}

func aggregate(name string) RenderFunc {
	return func(args []Arg) (string, error) {
		return fmt.Sprintf("%s(%s)", name, args[1].Text), nil
	}
}
