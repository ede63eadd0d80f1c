package query

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cdtdelta/easlog/internal/model"
)

// Table is the table every query selects from.
const Table = "eas_entries"

// Logic determines how multiple predicates are combined.
type Logic int

const (
	AND Logic = iota
	OR
)

// Operator represents a SQL comparison operator.
type Operator string

const (
	Equal          Operator = "="
	NotEqual       Operator = "!="
	Like           Operator = "LIKE"
	NotLike        Operator = "NOT LIKE"
	GreaterOrEqual Operator = ">="
	LessOrEqual    Operator = "<="
)

var validOperators = map[Operator]bool{
	Equal: true, NotEqual: true, Like: true, NotLike: true,
	GreaterOrEqual: true, LessOrEqual: true,
}

// Predicate represents a single filter condition or a composite of conditions.
// Values are always bound as parameters.
type Predicate struct {
	kind  predicateKind
	field string
	op    Operator
	value any
	from  time.Time
	to    time.Time
	left  *Predicate
	right *Predicate
	logic Logic
}

type predicateKind int

const (
	predNone predicateKind = iota
	predSimple
	predTime
	predComposite
)

// Simple creates a predicate that compares a column to a value.
// Returns nil if the column name is invalid or the operator is unrecognized.
// LIKE operators match the value as a substring.
func Simple(field string, op Operator, value any) *Predicate {
	if !isValidField(field) || !validOperators[op] {
		return nil
	}
	return &Predicate{kind: predSimple, field: field, op: op, value: value}
}

// TimeRange creates a predicate matching entries requested between from and
// to, inclusive.
func TimeRange(from, to time.Time) *Predicate {
	return &Predicate{kind: predTime, from: from, to: to}
}

// Combine joins multiple predicates with the given logic (AND or OR).
// Returns nil for an empty slice. Returns the single predicate if only one is given.
// Nil predicates in the slice are skipped.
func Combine(preds []*Predicate, logic Logic) *Predicate {
	filtered := slices.DeleteFunc(slices.Clone(preds), func(p *Predicate) bool { return p == nil })

	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	}

	result := filtered[0]
	for _, p := range filtered[1:] {
		result = &Predicate{kind: predComposite, left: result, right: p, logic: logic}
	}
	return result
}

// WhereClause returns the SQL WHERE fragment and its parameter values,
// numbering placeholders from 1. For example: "(source = ?)", []any{"a.log"}.
func (p *Predicate) WhereClause(d QueryDialect) (string, []any) {
	if d == nil {
		d = DefaultDialect
	}
	next := 1
	return p.where(d, &next)
}

func (p *Predicate) where(d QueryDialect, next *int) (string, []any) {
	if p == nil {
		return "", nil
	}

	switch p.kind {
	case predSimple:
		ph := d.Placeholder(*next)
		*next++
		col := d.QuoteColumn(p.field)
		if p.op == Like || p.op == NotLike {
			return fmt.Sprintf("(%s %s %s)", col, p.op, ph), []any{"%" + fmt.Sprint(p.value) + "%"}
		}
		value := p.value
		if t, ok := value.(time.Time); ok {
			value = d.TimeArg(t)
		}
		return fmt.Sprintf("(%s %s %s)", col, p.op, ph), []any{value}

	case predTime:
		sql := d.TimeBetweenSQL(*next, *next+1)
		*next += 2
		return sql, []any{d.TimeArg(p.from), d.TimeArg(p.to)}

	case predComposite:
		leftSQL, leftArgs := p.left.where(d, next)
		rightSQL, rightArgs := p.right.where(d, next)

		if leftSQL == "" {
			return rightSQL, rightArgs
		}
		if rightSQL == "" {
			return leftSQL, leftArgs
		}

		logicStr := "AND"
		if p.logic == OR {
			logicStr = "OR"
		}
		return fmt.Sprintf("(%s %s %s)", leftSQL, logicStr, rightSQL), append(leftArgs, rightArgs...)

	default:
		return "", nil
	}
}

// Fields returns the column names referenced by this predicate tree.
func (p *Predicate) Fields() []string {
	if p == nil {
		return nil
	}

	switch p.kind {
	case predSimple:
		return []string{p.field}
	case predTime:
		return []string{"requested_at"}
	case predComposite:
		return appendUnique(p.left.Fields(), p.right.Fields()...)
	default:
		return nil
	}
}

func appendUnique(dst []string, fields ...string) []string {
	for _, f := range fields {
		if !slices.Contains(dst, f) {
			dst = append(dst, f)
		}
	}
	return dst
}

// Query builds a full SELECT statement from predicates, ordering, and pagination.
type Query struct {
	dialect    QueryDialect
	predicates []*Predicate
	logic      Logic
	orderBy    string
	desc       bool
	pageSize   int
	page       int
}

// New creates a new Query with the given page size.
// Pass 0 for no pagination.
func New(pageSize int) *Query {
	return &Query{
		dialect:  DefaultDialect,
		logic:    AND,
		pageSize: pageSize,
		page:     1,
	}
}

// SetDialect selects the SQL dialect. A nil dialect restores the default.
func (q *Query) SetDialect(d QueryDialect) {
	if d == nil {
		d = DefaultDialect
	}
	q.dialect = d
}

// SetLogic sets how top-level predicates are combined (AND or OR).
func (q *Query) SetLogic(logic Logic) {
	q.logic = logic
}

// AddPredicate appends a predicate to the query. Nil predicates are ignored.
func (q *Query) AddPredicate(p *Predicate) {
	if p != nil {
		q.predicates = append(q.predicates, p)
	}
}

// RemovePredicate removes the first occurrence of a predicate from the query.
func (q *Query) RemovePredicate(p *Predicate) {
	if i := slices.Index(q.predicates, p); i >= 0 {
		q.predicates = slices.Delete(q.predicates, i, i+1)
	}
}

// ClearPredicates removes all predicates from the query.
func (q *Query) ClearPredicates() {
	q.predicates = nil
}

// OrderBy sets the column to sort results by, ascending unless desc is set.
// Pass an empty string to clear ordering.
func (q *Query) OrderBy(field string, desc bool) error {
	if field == "" {
		q.orderBy, q.desc = "", false
		return nil
	}
	if !isValidField(field) && field != q.dialect.IDColumn() {
		return fmt.Errorf("invalid order by field: %s", field)
	}
	q.orderBy, q.desc = field, desc
	return nil
}

// SetPage sets the current page number (1-based).
func (q *Query) SetPage(page int) {
	if page >= 1 {
		q.page = page
	}
}

// PageNumber returns the current page number (1-based).
func (q *Query) PageNumber() int {
	return q.page
}

func (q *Query) selectSQL() string {
	return "SELECT " + q.dialect.IDColumn() + ", " + strings.Join(model.Columns, ", ") + " FROM " + Table
}

func (q *Query) whereSQL() (string, []any) {
	sql, args := Combine(q.predicates, q.logic).WhereClause(q.dialect)
	if sql == "" {
		return "", nil
	}
	return " WHERE " + sql, args
}

func (q *Query) tailSQL() string {
	var sb strings.Builder
	if q.orderBy != "" {
		sb.WriteString(" ORDER BY " + q.dialect.QuoteColumn(q.orderBy))
		if q.desc {
			sb.WriteString(" DESC")
		}
	}
	if q.pageSize > 0 {
		fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", q.pageSize, q.pageSize*(q.page-1))
	}
	return sb.String()
}

// Build generates the full SQL SELECT statement and its parameter values.
// The select list is the id column followed by model.Columns.
func (q *Query) Build() (string, []any) {
	where, args := q.whereSQL()
	return q.selectSQL() + where + q.tailSQL(), args
}

// BuildCount generates a COUNT query using the same predicates.
func (q *Query) BuildCount() (string, []any) {
	where, args := q.whereSQL()
	return "SELECT COUNT(*) FROM " + Table + where, args
}

// PredicateFields returns all column names referenced across all predicates.
func (q *Query) PredicateFields() []string {
	var result []string
	for _, p := range q.predicates {
		result = appendUnique(result, p.Fields()...)
	}
	return result
}

// RawQuery wraps a user-provided SQL WHERE clause for direct execution.
type RawQuery struct {
	Query
	rawWhere string
}

// NewRaw creates a query from a raw WHERE clause string.
// The raw clause is used as-is, so the caller is responsible for safety.
// Pagination and ordering still work normally on top of it.
func NewRaw(pageSize int, whereClause string) *RawQuery {
	return &RawQuery{
		Query:    *New(pageSize),
		rawWhere: whereClause,
	}
}

// SetRawWhere updates the raw WHERE clause.
func (rq *RawQuery) SetRawWhere(where string) {
	rq.rawWhere = where
}

func (rq *RawQuery) where() string {
	if rq.rawWhere == "" {
		return ""
	}
	return " WHERE " + rq.rawWhere
}

// Build generates the SQL using the raw WHERE clause plus ordering and pagination.
// Raw queries carry no bound arguments.
func (rq *RawQuery) Build() (string, []any) {
	return rq.selectSQL() + rq.where() + rq.tailSQL(), nil
}

// BuildCount generates a COUNT query over the raw WHERE clause.
func (rq *RawQuery) BuildCount() (string, []any) {
	return "SELECT COUNT(*) FROM " + Table + rq.where(), nil
}

func isValidField(name string) bool {
	return slices.Contains(model.Columns, name)
}
