package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrVersionConflict is returned when a conditional write finds the row
	// at a different version than the caller read.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate wraps unique-key violations.
	ErrDuplicate = errors.New("duplicate key")
	ErrNotFound  = errors.New("not found")
)

const mysqlErrDupEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDupEntry
}
