//go:build cgo && sqlite3_cgo

package syncdb

import (
	_ "github.com/mattn/go-sqlite3"
)

const driverID = "mattn/go-sqlite3"
const driverName = "sqlite3"
