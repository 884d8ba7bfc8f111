package internal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lychee-technology/breeze"
)

// statementBuilder renders the row store statements of one SQL dialect. Column and table names
// come from metadata and are always quoted; values are always bound.
type statementBuilder struct {
	dialect breeze.Dialect
}

func newStatementBuilder(dialect breeze.Dialect) statementBuilder {
	if dialect == "" {
		dialect = breeze.DialectPostgres
	}
	return statementBuilder{dialect: dialect}
}

func (b statementBuilder) placeholder(n int) string {
	if b.dialect == breeze.DialectSQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// orderedProperties returns the properties present in values, in declaration order.
func orderedProperties(et *breeze.EntityType, values map[string]any) []*breeze.DataProperty {
	props := make([]*breeze.DataProperty, 0, len(values))
	for _, p := range et.DataProperties {
		if _, ok := values[p.Name]; ok {
			props = append(props, p)
		}
	}
	return props
}

func (b statementBuilder) insert(et *breeze.EntityType, values map[string]any) (string, []any) {
	table := sanitizeIdentifier(et.Table())
	props := orderedProperties(et, values)
	if len(props) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", table), nil
	}
	columns := make([]string, 0, len(props))
	placeholders := make([]string, 0, len(props))
	args := make([]any, 0, len(props))
	for i, p := range props {
		columns = append(columns, sanitizeIdentifier(p.Column()))
		placeholders = append(placeholders, b.placeholder(i+1))
		args = append(args, values[p.Name])
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", ")), args
}

func (b statementBuilder) update(et *breeze.EntityType, set, where map[string]any) (string, []any, error) {
	setProps := orderedProperties(et, set)
	if len(setProps) == 0 {
		return "", nil, fmt.Errorf("update of %s has no columns to set", et.Name)
	}
	assignments := make([]string, 0, len(setProps))
	args := make([]any, 0, len(setProps)+len(where))
	for _, p := range setProps {
		args = append(args, set[p.Name])
		assignments = append(assignments, fmt.Sprintf("%s = %s", sanitizeIdentifier(p.Column()), b.placeholder(len(args))))
	}
	predicate, args, err := b.predicate(et, where, args)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		sanitizeIdentifier(et.Table()), strings.Join(assignments, ", "), predicate), args, nil
}

func (b statementBuilder) delete(et *breeze.EntityType, where map[string]any, limit int) (string, []any, error) {
	predicate, args, err := b.predicate(et, where, nil)
	if err != nil {
		return "", nil, err
	}
	table := sanitizeIdentifier(et.Table())
	if limit <= 0 {
		return fmt.Sprintf("DELETE FROM %s WHERE %s", table, predicate), args, nil
	}
	rowID := "ctid"
	if b.dialect == breeze.DialectSQLite {
		rowID = "rowid"
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s IN (SELECT %s FROM %s WHERE %s LIMIT %d)",
		table, rowID, rowID, table, predicate, limit), args, nil
}

// predicate renders where as a conjunction. Nil values compare with IS NULL. An empty where is
// refused so that a statement never touches the whole table.
func (b statementBuilder) predicate(et *breeze.EntityType, where map[string]any, args []any) (string, []any, error) {
	props := orderedProperties(et, where)
	if len(props) == 0 || len(props) != len(where) {
		return "", nil, fmt.Errorf("where clause for %s must name known properties only and cannot be empty", et.Name)
	}
	conditions := make([]string, 0, len(props))
	for _, p := range props {
		column := sanitizeIdentifier(p.Column())
		value := where[p.Name]
		if value == nil {
			conditions = append(conditions, column+" IS NULL")
			continue
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = %s", column, b.placeholder(len(args))))
	}
	return strings.Join(conditions, " AND "), args, nil
}

// rowValues maps a returned row, keyed by column, back to property names. Columns that do not
// belong to a data property are dropped.
func rowValues(et *breeze.EntityType, columns []string, values []any) map[string]any {
	byColumn := make(map[string]*breeze.DataProperty, len(et.DataProperties))
	for _, p := range et.DataProperties {
		byColumn[strings.ToLower(p.Column())] = p
	}
	row := make(map[string]any, len(columns))
	for i, column := range columns {
		if i >= len(values) {
			break
		}
		p, ok := byColumn[strings.ToLower(column)]
		if !ok {
			continue
		}
		row[p.Name] = values[i]
	}
	return row
}
