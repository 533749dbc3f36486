package database

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

type ConditionType string

const (
	Equal    ConditionType = "="
	NotEqual ConditionType = "!="
	ILike    ConditionType = "ILIKE"
	In       ConditionType = "IN"
	Custom   ConditionType = "CUSTOM"

	unset = -1
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Condition is one AND-ed term of a WHERE clause.
type Condition struct {
	Field    string
	Type     ConditionType
	Value    any
	rawQuery string
}

// WhereCond compares a sanitised column against a bound value.
func WhereCond(field string, condType ConditionType, value any) Condition {
	if condType == Custom {
		//nolint:forbidigo // custom conditions must go through WhereRawCond
		panic("use WhereRawCond for Custom conditions")
	}
	return Condition{Field: field, Type: condType, Value: value}
}

// WhereRawCond adds a raw SQL fragment. Its $1..$n placeholders refer to params
// and are renumbered when the query is assembled. The fragment is not sanitised.
func WhereRawCond(rawQuery string, params ...any) Condition {
	return Condition{Type: Custom, rawQuery: rawQuery, Value: params}
}

// ListQueryOptions describes a SELECT over a single table or view.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBy    []OrderTerm
	Limit      int
	Offset     int
}

// OrderTerm is one ORDER BY column.
type OrderTerm struct {
	Column string
	Desc   bool
}

type ListQueryOption func(*ListQueryOptions)

func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	o := &ListQueryOptions{Table: table, Limit: unset, Offset: unset}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = append(o.Conditions, cond) }
}

// WithOrderBy appends an ORDER BY term. Unknown directions sort ascending.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.OrderBy = append(o.OrderBy, OrderTerm{Column: column, Desc: strings.EqualFold(direction, "DESC")})
	}
}

// WithLimit sets the limit. Negative values are ignored.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Negative values are ignored.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) { o.CountOnly = true }
}

func ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// BuildListQuery renders options into SQL and positional args. Identifiers are
// quoted; values are always bound.
//
//	q, args := BuildListQuery(NewListQueryOptions("note_listing",
//		WithColumns("id", "title"),
//		WithCondition(WhereCond("category", Equal, "work")),
//		WithOrderBy("updated_at", "DESC"),
//		WithLimit(50),
//	))
func BuildListQuery(o *ListQueryOptions) (string, []any) {
	if o == nil {
		return "", nil
	}

	var b strings.Builder
	switch {
	case o.CountOnly:
		b.WriteString("SELECT COUNT(*)")
	case len(o.Columns) == 0:
		b.WriteString("SELECT *")
	default:
		cols := make([]string, len(o.Columns))
		for i, c := range o.Columns {
			cols[i] = ident(c)
		}
		b.WriteString("SELECT " + strings.Join(cols, ", "))
	}
	b.WriteString(" FROM " + ident(o.Table))

	where, args := buildWhere(o.Conditions)
	if where != "" {
		b.WriteString(" WHERE " + where)
	}
	if o.CountOnly {
		return b.String(), args
	}

	if len(o.OrderBy) > 0 {
		terms := make([]string, len(o.OrderBy))
		for i, t := range o.OrderBy {
			terms[i] = ident(t.Column)
			if t.Desc {
				terms[i] += " DESC"
			}
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if o.Limit != unset {
		args = append(args, o.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if o.Offset != unset {
		args = append(args, o.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

func buildWhere(conds []Condition) (string, []any) {
	parts := make([]string, 0, len(conds))
	var args []any
	for _, c := range conds {
		var frag string
		switch c.Type {
		case Custom:
			frag, args = renumber(c, args)
		case In:
			frag, args = inCondition(c, args)
		case Equal, NotEqual, ILike:
			if c.Field == "" {
				continue
			}
			args = append(args, c.Value)
			frag = fmt.Sprintf("%s %s $%d", ident(c.Field), c.Type, len(args))
		}
		if frag != "" {
			parts = append(parts, frag)
		}
	}
	return strings.Join(parts, " AND "), args
}

func inCondition(c Condition, args []any) (string, []any) {
	rv := reflect.ValueOf(c.Value)
	if c.Field == "" || rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return "", args
	}
	ph := make([]string, rv.Len())
	for i := range rv.Len() {
		args = append(args, rv.Index(i).Interface())
		ph[i] = "$" + strconv.Itoa(len(args))
	}
	return fmt.Sprintf("%s IN (%s)", ident(c.Field), strings.Join(ph, ", ")), args
}

// renumber maps a raw fragment's local $n placeholders onto the query's
// running argument list. Repeated placeholders bind once.
func renumber(c Condition, args []any) (string, []any) {
	if c.rawQuery == "" {
		return "", args
	}
	params, _ := c.Value.([]any)
	seen := make(map[int]int)
	frag := placeholderRe.ReplaceAllStringFunc(c.rawQuery, func(m string) string {
		n, err := strconv.Atoi(m[1:])
		if err != nil || n < 1 || n > len(params) {
			return m
		}
		if pos, ok := seen[n]; ok {
			return "$" + strconv.Itoa(pos)
		}
		args = append(args, params[n-1])
		seen[n] = len(args)
		return "$" + strconv.Itoa(len(args))
	})
	return "(" + frag + ")", args
}
