package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekklesia/commhub/migrations"
)

func TestEmbeddedFilesAreOrdered(t *testing.T) {
	files, err := Files(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_users.sql", files[0])
	assert.IsIncreasing(t, files)
}

func TestUpSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"001_a.sql":  {Data: []byte("CREATE TABLE a (id INT);")},
		"002_b.sql":  {Data: []byte("CREATE TABLE b (id INT);")},
		"003_c.sql":  {Data: []byte("   ")},
		"readme.txt": {Data: []byte("ignored")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_a.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("002_b.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err := Up(context.Background(), db, fsys)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_a.sql"))

	out, err := Status(context.Background(), db, fstest.MapFS{
		"001_a.sql": {Data: []byte("x")},
		"002_b.sql": {Data: []byte("y")},
	})
	require.NoError(t, err)
	assert.Equal(t, []Migration{{Name: "001_a.sql", Applied: true}, {Name: "002_b.sql", Applied: false}}, out)
}
