package sqlrunner

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestRenderValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"F", "F"},
		{[]byte("abc"), "abc"},
		{[]byte{0xff, 0xfe}, "//4="},
		{int64(42), "42"},
		{int32(-7), "-7"},
		{3, "3"},
		{1.5, "1.5"},
		{float32(0.25), "0.25"},
		{true, "True"},
		{false, "False"},
		{time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), "2021-03-04 05:06:07"},
		{time.Date(2021, 3, 4, 5, 6, 7, 123456000, time.UTC), "2021-03-04 05:06:07.123456"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, renderValue(tc.in), "%#v", tc.in)
	}
}

func TestRowsCursor_DrainsLaterResultSets(t *testing.T) {
	conn, mock := newSQLMock(t)
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2),
		sqlmock.NewRows([]string{"n"}).AddRow(10),
		sqlmock.NewRows([]string{"m"}),
	)

	rows, err := conn.QueryContext(context.Background(), "SELECT id FROM t; SELECT n FROM u; SELECT m FROM v")
	require.NoError(t, err)
	cur, err := newRowsCursor(rows)
	require.NoError(t, err)
	defer cur.Close()

	var ids []any
	for {
		row, err := cur.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Equal(t, []string{"id"}, row.Columns)
		ids = append(ids, row.Values[0])
	}
	require.Len(t, ids, 2)
	require.Equal(t, 2, cur.ExtraResultSets())

	_, err = cur.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	assertSQLMock(t, mock)
}

func TestRowsCursor_CanceledContext(t *testing.T) {
	conn, mock := newSQLMock(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	rows, err := conn.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	cur, err := newRowsCursor(rows)
	require.NoError(t, err)
	defer cur.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cur.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStaticCursor(t *testing.T) {
	cur := &staticCursor{rows: []Row{{Columns: []string{"a"}, Values: []any{nil}}}}
	row, err := cur.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, row.Columns)
	_, err = cur.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, cur.Close())
}
