package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatDSN(t *testing.T) {
	dsn := Config{Host: "db", Port: 3306, User: "cloud", Password: "secret", DBName: "cloud"}.FormatDSN()
	assert.Contains(t, dsn, "cloud:secret@tcp(db:3306)/cloud")
	assert.Contains(t, dsn, "parseTime=true")
}

func TestDialect(t *testing.T) {
	d := NewDialect()
	assert.Equal(t, "SELECT ? FROM t WHERE a = ?", d.Rebind("SELECT $1 FROM t WHERE a = $2"))
	assert.Equal(t, "INSERT IGNORE INTO sync_queue (id, k) VALUES (?, ?)",
		d.InsertIgnore("sync_queue", "id, k", "$1, $2", "k"))
}
