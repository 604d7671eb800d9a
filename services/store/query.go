package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Op string

const (
	OpIsNull   Op = "IS NULL"
	OpNotNull  Op = "IS NOT NULL"
	OpEq       Op = "="
	OpGte      Op = ">="
	OpLte      Op = "<="
	OpBetween  Op = "BETWEEN"
	OpIn       Op = "IN"
	OpInSelect Op = "IN SELECT"
)

// Criterion is a single predicate over a table's rows. Values are always
// sent to the store as bind parameters.
type Criterion struct {
	Field  string
	Op     Op
	Values []any
	// Select is the sub-query for OpInSelect, it must project exactly one
	// column.
	Select *Query
}

func IsNull(field string) Criterion {
	return Criterion{Field: field, Op: OpIsNull}
}

func NotNull(field string) Criterion {
	return Criterion{Field: field, Op: OpNotNull}
}

func Eq(field string, value any) Criterion {
	return Criterion{Field: field, Op: OpEq, Values: []any{value}}
}

func Gte(field string, value any) Criterion {
	return Criterion{Field: field, Op: OpGte, Values: []any{value}}
}

func Lte(field string, value any) Criterion {
	return Criterion{Field: field, Op: OpLte, Values: []any{value}}
}

// Between renders `field BETWEEN low AND high` with the bounds in the order
// given, no reordering is done.
func Between(field string, low, high any) Criterion {
	return Criterion{Field: field, Op: OpBetween, Values: []any{low, high}}
}

func In(field string, values ...any) Criterion {
	return Criterion{Field: field, Op: OpIn, Values: values}
}

func InSelect(field string, sub Query) Criterion {
	return Criterion{Field: field, Op: OpInSelect, Select: &sub}
}

// Query selects Columns (all columns when empty) from Table for the rows
// matching every criterion in Where.
//
// Without OrderBy the row order is whatever the store returns, which makes
// LIMIT/OFFSET pages unstable between calls.
type Query struct {
	Table   string
	Columns []string
	Where   []Criterion
	OrderBy []string
}

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QuoteIdent quotes a (possibly table qualified) identifier with backticks,
// which both mysql and sqlite accept. Anything that is not a plain
// identifier is rejected.
func QuoteIdent(name string) (string, error) {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	for i, p := range parts {
		if !identRegex.MatchString(p) {
			return "", fmt.Errorf("invalid identifier %q", name)
		}
		parts[i] = "`" + p + "`"
	}
	return strings.Join(parts, "."), nil
}

// bindValue checks a filter value and converts it to something every
// driver binds the same way. Dates without a clock component are bound as
// YYYY-MM-DD so they compare correctly against DATE and TEXT columns.
func bindValue(v any) (any, error) {
	switch v := v.(type) {
	case string, bool, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case float32:
		return float64(v), nil
	case time.Time:
		if v.IsZero() {
			return nil, fmt.Errorf("zero time is not a valid filter value")
		}
		h, m, s := v.Clock()
		if h == 0 && m == 0 && s == 0 && v.Nanosecond() == 0 {
			return v.Format(time.DateOnly), nil
		}
		return v.Format(time.DateTime), nil
	case nil:
		return nil, fmt.Errorf("nil is not a valid filter value, use IsNull")
	default:
		return nil, fmt.Errorf("unsupported filter value of type %T", v)
	}
}

type builder struct {
	sql  strings.Builder
	args []any
}

func (b *builder) criterion(c Criterion) error {
	field, err := QuoteIdent(c.Field)
	if err != nil {
		return err
	}

	want := -1
	switch c.Op {
	case OpIsNull, OpNotNull, OpInSelect:
		want = 0
	case OpEq, OpGte, OpLte:
		want = 1
	case OpBetween:
		want = 2
	case OpIn:
		if len(c.Values) == 0 {
			return fmt.Errorf("%s IN needs at least one value", c.Field)
		}
	default:
		return fmt.Errorf("unknown operator %q", c.Op)
	}
	if want >= 0 && len(c.Values) != want {
		return fmt.Errorf("%s %s takes %d values, got %d", c.Field, c.Op, want, len(c.Values))
	}

	bound := make([]any, len(c.Values))
	for i, v := range c.Values {
		bound[i], err = bindValue(v)
		if err != nil {
			return fmt.Errorf("%s %s: %w", c.Field, c.Op, err)
		}
	}

	b.sql.WriteString(field)
	switch c.Op {
	case OpIsNull, OpNotNull, OpEq, OpGte, OpLte:
		b.sql.WriteString(" " + string(c.Op))
		if want == 1 {
			b.sql.WriteString(" ?")
		}
	case OpBetween:
		b.sql.WriteString(" BETWEEN ? AND ?")
	case OpIn:
		b.sql.WriteString(" IN (")
		b.sql.WriteString(strings.TrimSuffix(strings.Repeat("?, ", len(bound)), ", "))
		b.sql.WriteString(")")
	case OpInSelect:
		if c.Select == nil || len(c.Select.Columns) != 1 {
			return fmt.Errorf("%s IN SELECT needs a sub-query with exactly one column", c.Field)
		}
		b.sql.WriteString(" IN (")
		err = b.selectStmt(*c.Select)
		if err != nil {
			return err
		}
		b.sql.WriteString(")")
	}
	b.args = append(b.args, bound...)
	return nil
}

func (b *builder) selectStmt(q Query) error {
	table, err := QuoteIdent(q.Table)
	if err != nil {
		return err
	}

	b.sql.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		b.sql.WriteString("*")
	}
	for i, c := range q.Columns {
		col, err := QuoteIdent(c)
		if err != nil {
			return err
		}
		if i > 0 {
			b.sql.WriteString(", ")
		}
		b.sql.WriteString(col)
	}
	b.sql.WriteString(" FROM ")
	b.sql.WriteString(table)

	for i, c := range q.Where {
		if i == 0 {
			b.sql.WriteString(" WHERE ")
		} else {
			b.sql.WriteString(" AND ")
		}
		err = b.criterion(c)
		if err != nil {
			return err
		}
	}

	for i, o := range q.OrderBy {
		col, err := QuoteIdent(o)
		if err != nil {
			return err
		}
		if i == 0 {
			b.sql.WriteString(" ORDER BY ")
		} else {
			b.sql.WriteString(", ")
		}
		b.sql.WriteString(col)
	}
	return nil
}

// Build renders the query into SQL with `?` placeholders and the arguments
// to bind to them. A nil limit leaves the query unbounded.
func (q Query) Build(limit, offset *int) (string, []any, error) {
	var b builder
	err := b.selectStmt(q)
	if err != nil {
		return "", nil, err
	}
	if limit != nil {
		b.sql.WriteString(" LIMIT ?")
		b.args = append(b.args, int64(*limit))
		if offset != nil {
			b.sql.WriteString(" OFFSET ?")
			b.args = append(b.args, int64(*offset))
		}
	}
	return b.sql.String(), b.args, nil
}
