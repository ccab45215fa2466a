package sqlsource

import (
	"database/sql"
)

// rowCursor adapts *sql.Rows to the Cursor contract. It is primed on creation so Valid
// and Current describe the first row right away.
type rowCursor[T any] struct {
	rows    *sql.Rows
	scan    func(rows *sql.Rows) (T, error)
	current T
	valid   bool
	closed  bool
}

func newRowCursor[T any](rows *sql.Rows, scan func(rows *sql.Rows) (T, error)) (*rowCursor[T], error) {
	c := &rowCursor[T]{rows: rows, scan: scan}
	if err := c.Next(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *rowCursor[T]) Valid() bool {
	return c.valid
}

func (c *rowCursor[T]) Current() T {
	return c.current
}

func (c *rowCursor[T]) Next() error {
	var zero T
	if c.closed {
		c.valid, c.current = false, zero
		return nil
	}
	if !c.rows.Next() {
		c.valid, c.current = false, zero
		return c.rows.Err()
	}
	v, err := c.scan(c.rows)
	if err != nil {
		c.valid, c.current = false, zero
		return err
	}
	c.valid, c.current = true, v
	return nil
}

func (c *rowCursor[T]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.valid = false
	return c.rows.Close()
}
