package sqlxrepos

import (
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// notFound swaps sql.ErrNoRows for the domain's not-found error.
func notFound(err, notFoundErr error) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFoundErr
	}
	return err
}

// affected fails with notFoundErr when res touched no row.
func affected(res sql.Result, notFoundErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

// where accumulates AND-ed conditions with `?` bindvars; rebind the final query for the driver.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, arg interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, arg)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func jsonDoc(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func fromJSONDoc(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
