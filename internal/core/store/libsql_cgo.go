//go:build cgo

package store

// Registers the libsql database/sql driver. The driver is cgo-only, so the
// import lives behind the cgo build tag alongside the cgo-gated tests.
import _ "github.com/tursodatabase/go-libsql"
