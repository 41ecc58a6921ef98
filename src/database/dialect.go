package database

import (
	"fmt"
	"strings"
)

// Dialect renders the dialect-neutral schema and the few statements that
// differ between MySQL and SQLite
type Dialect interface {
	Name() string
	Quote(ident string) string
	CreateTableSQL(t Table) []string
	// AddConstraintSQL returns false when the engine cannot add foreign keys
	// to an existing table
	AddConstraintSQL(c Constraint) (string, bool)
	CreateDatabaseSQL(name, charset, collation string) (string, bool)
	UseDatabaseSQL(name string) (string, bool)
	TableExistsSQL() string
	// UpsertSQL inserts columns, updating the listed columns when key collides
	UpsertSQL(table string, columns []string, key string, update []string) string
	ForUpdate() string
}

// DialectFor returns the dialect for a normalized driver name
func DialectFor(driver string) Dialect {
	if driver == DriverSQLite {
		return sqliteDialect{}
	}
	return mysqlDialect{}
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return DriverMySQL }

func (mysqlDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d mysqlDialect) column(c Column) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteByte(' ')

	switch c.Type {
	case TypeID:
		b.WriteString("INT UNSIGNED NOT NULL AUTO_INCREMENT")
		return b.String()
	case TypeRef:
		b.WriteString("INT UNSIGNED")
	case TypeInt:
		b.WriteString("INT")
	case TypeDecimal:
		b.WriteString("DECIMAL(10,2)")
	case TypeString:
		fmt.Fprintf(&b, "VARCHAR(%d)", c.Size)
	case TypeText:
		b.WriteString("TEXT")
	case TypeBool:
		b.WriteString("TINYINT(1)")
	case TypeTimestamp:
		b.WriteString("TIMESTAMP")
	case TypeEnum:
		b.WriteString("ENUM(" + quoteValues(c.Values) + ")")
	case TypeJSON:
		b.WriteString("LONGTEXT")
	}

	if c.Nullable {
		b.WriteString(" NULL")
	} else {
		b.WriteString(" NOT NULL")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT " + c.Default)
	} else if c.Nullable && c.Type == TypeTimestamp {
		b.WriteString(" DEFAULT NULL")
	}
	if c.AutoUpdate {
		b.WriteString(" ON UPDATE CURRENT_TIMESTAMP")
	}
	return b.String()
}

func (d mysqlDialect) CreateTableSQL(t Table) []string {
	lines := make([]string, 0, len(t.Columns)+len(t.Indexes)+1)
	for _, c := range t.Columns {
		lines = append(lines, "  "+d.column(c))
	}
	lines = append(lines, "  PRIMARY KEY (`id`)")
	for _, c := range t.Columns {
		if c.Unique {
			lines = append(lines, fmt.Sprintf("  UNIQUE KEY %s (%s)", d.Quote("uq_"+t.Name+"_"+c.Name), d.Quote(c.Name)))
		}
	}
	for _, idx := range t.Indexes {
		kind := "KEY"
		if idx.Unique {
			kind = "UNIQUE KEY"
		}
		lines = append(lines, fmt.Sprintf("  %s %s (%s)", kind, d.Quote(idx.Name), d.quoteList(idx.Columns)))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",
		d.Quote(t.Name), strings.Join(lines, ",\n"))
	return []string{stmt}
}

func (d mysqlDialect) AddConstraintSQL(c Constraint) (string, bool) {
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
		d.Quote(c.Table), d.Quote(c.Name), d.Quote(c.Column), d.Quote(c.RefTable), d.Quote(c.RefColumn), c.OnDelete), true
}

func (d mysqlDialect) CreateDatabaseSQL(name, charset, collation string) (string, bool) {
	stmt := "CREATE DATABASE IF NOT EXISTS " + d.Quote(name)
	if charset != "" {
		stmt += " CHARACTER SET " + charset
	}
	if collation != "" {
		stmt += " COLLATE " + collation
	}
	return stmt, true
}

func (d mysqlDialect) UseDatabaseSQL(name string) (string, bool) {
	return "USE " + d.Quote(name), true
}

func (mysqlDialect) TableExistsSQL() string {
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
}

func (d mysqlDialect) UpsertSQL(table string, columns []string, key string, update []string) string {
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", d.Quote(c), d.Quote(c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		d.Quote(table), d.quoteList(columns), placeholders(len(columns)), strings.Join(sets, ", "))
}

func (mysqlDialect) ForUpdate() string { return " FOR UPDATE" }

func (d mysqlDialect) quoteList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.Quote(c)
	}
	return strings.Join(quoted, ", ")
}

// sqliteDialect backs tests and single-file deployments. SQLite cannot add a
// foreign key to an existing table, so constraints are reported as skipped.
type sqliteDialect struct{}

func (sqliteDialect) Name() string { return DriverSQLite }

func (sqliteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d sqliteDialect) column(c Column) string {
	var b strings.Builder
	b.WriteString(d.Quote(c.Name))
	b.WriteByte(' ')

	switch c.Type {
	case TypeID:
		b.WriteString("INTEGER PRIMARY KEY AUTOINCREMENT")
		return b.String()
	case TypeRef, TypeInt, TypeBool:
		b.WriteString("INTEGER")
	case TypeDecimal:
		b.WriteString("NUMERIC")
	case TypeString, TypeText, TypeEnum, TypeJSON:
		b.WriteString("TEXT")
	case TypeTimestamp:
		b.WriteString("DATETIME")
	}

	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT " + c.Default)
	}
	if c.Unique {
		b.WriteString(" UNIQUE")
	}
	if c.Type == TypeEnum {
		fmt.Fprintf(&b, " CHECK (%s IN (%s))", d.Quote(c.Name), quoteValues(c.Values))
	}
	return b.String()
}

func (d sqliteDialect) CreateTableSQL(t Table) []string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = "  " + d.column(c)
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", d.Quote(t.Name), strings.Join(cols, ",\n"))}
	for _, idx := range t.Indexes {
		kind := "INDEX"
		if idx.Unique {
			kind = "UNIQUE INDEX"
		}
		quoted := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			quoted[i] = d.Quote(c)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
			kind, d.Quote(idx.Name), d.Quote(t.Name), strings.Join(quoted, ", ")))
	}
	return stmts
}

func (sqliteDialect) AddConstraintSQL(Constraint) (string, bool) { return "", false }

func (sqliteDialect) CreateDatabaseSQL(string, string, string) (string, bool) { return "", false }

func (sqliteDialect) UseDatabaseSQL(string) (string, bool) { return "", false }

func (sqliteDialect) TableExistsSQL() string {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
}

func (d sqliteDialect) UpsertSQL(table string, columns []string, key string, update []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
	}
	sets := make([]string, len(update))
	for i, c := range update {
		sets[i] = fmt.Sprintf("%s = excluded.%s", d.Quote(c), d.Quote(c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		d.Quote(table), strings.Join(quoted, ", "), placeholders(len(columns)), d.Quote(key), strings.Join(sets, ", "))
}

func (sqliteDialect) ForUpdate() string { return "" }

func quoteValues(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ",")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
