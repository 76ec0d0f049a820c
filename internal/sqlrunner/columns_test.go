package sqlrunner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInferColumns(t *testing.T) {
	cases := []struct {
		sql  string
		want []string
	}{
		{"SELECT 1 AS Patient_ID", []string{"Patient_ID"}},
		{"-- acknowledged\nSELECT 1 AS Patient_ID", []string{"Patient_ID"}},
		{"SELECT p.Patient_ID, p.Sex AS sex FROM Patient p", []string{"Patient_ID", "sex"}},
		{"SELECT a FROM t UNION SELECT b FROM u", []string{"a"}},
	}
	for _, tc := range cases {
		got, err := InferColumns(tc.sql)
		require.NoError(t, err, tc.sql)
		require.Equal(t, tc.want, got, tc.sql)
	}
}

func TestInferColumns_ExpressionWithoutAlias(t *testing.T) {
	got, err := InferColumns("SELECT count(*) FROM Patient")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Contains(t, got[0], "count")
}

func TestInferColumns_Errors(t *testing.T) {
	for _, sqlText := range []string{
		"SELECT * FROM Patient",
		"DELETE FROM Patient",
		"this is not sql",
	} {
		_, err := InferColumns(sqlText)
		require.ErrorIs(t, err, ErrNoColumns, sqlText)
	}
}
