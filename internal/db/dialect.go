package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Supported dialect names.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DialectName returns the active database dialect name.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether the connection uses SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsFold returns a where clause and its argument matching rows whose
// expr contains needle, ignoring case. LIKE wildcards in needle are literal.
func ContainsFold(conn *gorm.DB, expr, needle string) (string, string) {
	pattern := "%" + likeEscaper.Replace(needle) + "%"
	if IsSQLite(conn) {
		return fmt.Sprintf(`LOWER(%s) LIKE ? ESCAPE '\'`, expr), strings.ToLower(pattern)
	}
	return fmt.Sprintf(`%s ILIKE ? ESCAPE '\'`, expr), pattern
}

// JSONText returns an expression reading the top-level key of a JSON column
// as text. key must be a plain identifier.
func JSONText(conn *gorm.DB, column, key string) string {
	if IsSQLite(conn) {
		return fmt.Sprintf("json_extract(%s, '$.%s')", column, key)
	}
	return fmt.Sprintf("(%s::jsonb)->>'%s'", column, key)
}
