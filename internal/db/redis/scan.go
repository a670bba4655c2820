package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/searchstream/internal/db"
)

const defaultScanBatch = 1000

// Scan walks all matches with FT.AGGREGATE ... WITHCURSOR and FT.CURSOR READ.
// Order is whatever RediSearch yields; use SearchPage when order matters.
func (s *Store) Scan(_ context.Context, req *db.ScanRequest) db.HitIterator {
	count := req.BatchSize
	if count <= 0 {
		count = defaultScanBatch
	}
	return &cursorScanner{
		s:      s,
		index:  req.Query.Index,
		expr:   buildExpression(req.Query),
		fields: req.Query.Fields,
		count:  count,
	}
}

type cursorScanner struct {
	s      *Store
	index  string
	expr   string
	fields []string
	count  int

	cursorID int64
	started  bool
	done     bool
	buf      []db.Hit
	err      error
}

func (c *cursorScanner) Next(ctx context.Context) (db.Hit, error) {
	for len(c.buf) == 0 {
		if c.err != nil {
			return db.Hit{}, c.err
		}
		if c.done {
			return db.Hit{}, db.ErrIteratorDone
		}
		if err := c.read(ctx); err != nil {
			c.err = err
			return db.Hit{}, err
		}
	}
	h := c.buf[0]
	c.buf = c.buf[1:]
	return h, nil
}

func (c *cursorScanner) read(ctx context.Context) error {
	op, name := db.OpAggregate, "FT.AGGREGATE"
	var args []string
	if !c.started {
		args = []string{c.index, c.expr, "LOAD", strconv.Itoa(len(c.fields) + 1), "@__key"}
		for _, f := range c.fields {
			args = append(args, "@"+f)
		}
		args = append(args, "WITHCURSOR", "COUNT", strconv.Itoa(c.count), "DIALECT", "2")
		c.started = true
	} else {
		op, name = db.OpCursorRead, "FT.CURSOR"
		args = []string{"READ", c.index, strconv.FormatInt(c.cursorID, 10), "COUNT", strconv.Itoa(c.count)}
	}

	raw, err := c.s.do(ctx, c.s.b().Arbitrary(name).Args(args...).Build()).ToArray()
	if err != nil {
		return wrapErr(op, err)
	}
	// [[num_results, row1, row2, ...], cursor_id]
	if len(raw) != 2 {
		c.done = true
		return nil
	}
	rows, err := raw[0].ToArray()
	if err != nil {
		return &db.Error{Op: op, Err: err}
	}
	c.cursorID, err = raw[1].AsInt64()
	if err != nil {
		return &db.Error{Op: op, Err: err}
	}
	if c.cursorID == 0 {
		c.done = true
	}

	for i := 1; i < len(rows); i++ {
		row, err := rows[i].ToArray()
		if err != nil {
			continue
		}
		fields := parseFieldPairs(row)
		key := fields["__key"]
		delete(fields, "__key")
		c.buf = append(c.buf, db.Hit{ID: key, Fields: fields})
	}
	return nil
}

// Stop deletes a still-open server cursor so it does not linger until its idle timeout.
func (c *cursorScanner) Stop() {
	if c.started && !c.done && c.cursorID != 0 {
		cmd := c.s.b().Arbitrary("FT.CURSOR").
			Args("DEL", c.index, strconv.FormatInt(c.cursorID, 10)).Build()
		_ = c.s.do(context.Background(), cmd).Error()
	}
	c.done = true
	c.buf = nil
}
