package sqlrunner

import (
	"errors"
	"fmt"

	"github.com/blastrain/vitess-sqlparser/sqlparser"
)

var ErrNoColumns = errors.New("cannot infer columns")

// InferColumns returns the output column names of a SELECT statement. For a
// UNION the left-most SELECT names the columns.
func InferColumns(sqlText string) ([]string, error) {
	stmt, err := sqlparser.Parse(sqlText)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoColumns, err)
	}
	sel, ok := stmt.(sqlparser.SelectStatement)
	if !ok {
		return nil, fmt.Errorf("%w: not a SELECT statement", ErrNoColumns)
	}
	return selectColumns(sel)
}

func selectColumns(stmt sqlparser.SelectStatement) ([]string, error) {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return exprColumns(s.SelectExprs)
	case *sqlparser.Union:
		return selectColumns(s.Left)
	case *sqlparser.ParenSelect:
		return selectColumns(s.Select)
	}
	return nil, fmt.Errorf("%w: unsupported statement %T", ErrNoColumns, stmt)
}

func exprColumns(exprs sqlparser.SelectExprs) ([]string, error) {
	columns := make([]string, 0, len(exprs))
	for _, e := range exprs {
		switch expr := e.(type) {
		case *sqlparser.AliasedExpr:
			columns = append(columns, aliasedName(expr))
		case *sqlparser.StarExpr:
			return nil, fmt.Errorf("%w: %s expands to unknown columns", ErrNoColumns, sqlparser.String(expr))
		default:
			return nil, fmt.Errorf("%w: unsupported select expression %T", ErrNoColumns, e)
		}
	}
	return columns, nil
}

func aliasedName(expr *sqlparser.AliasedExpr) string {
	if !expr.As.IsEmpty() {
		return expr.As.String()
	}
	if col, ok := expr.Expr.(*sqlparser.ColName); ok {
		return col.Name.String()
	}
	return sqlparser.String(expr.Expr)
}
