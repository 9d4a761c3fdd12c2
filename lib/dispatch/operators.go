package dispatch

import (
	"github.com/VictoriaMetrics-Community/linq-to-ksql/lib/expr"
)

func operatorSymbols() map[expr.Operator]string {
	return map[expr.Operator]string{
		expr.OpAdd:                "+",
		expr.OpSubtract:           "-",
		expr.OpMultiply:           "*",
		expr.OpDivide:             "/",
		expr.OpModulo:             "%",
		expr.OpEqual:              "=",
		expr.OpNotEqual:           "<>",
		expr.OpLessThan:           "<",
		expr.OpLessThanOrEqual:    "<=",
		expr.OpGreaterThan:        ">",
		expr.OpGreaterThanOrEqual: ">=",
		expr.OpAndAlso:            "AND",
		expr.OpOrElse:             "OR",
		expr.OpNot:                "NOT",
		expr.OpNegate:             "-",
	}
}

func textOperatorRenderers() map[expr.Operator]func(l, r string) string {
	return map[expr.Operator]func(l, r string) string{
		expr.OpAdd: func(l, r string) string { return "CONCAT(" + l + ", " + r + ")" },
	}
}
