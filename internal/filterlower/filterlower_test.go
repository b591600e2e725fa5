package filterlower

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracewell/collector/internal/sqlengine"
	"github.com/tracewell/collector/internal/store"
)

func TestLowerClauseOrder(t *testing.T) {
	sql, err := Lower(sqlengine.TableLogs, Flags{
		Service:    "svc",
		Attributes: map[string]string{"env": "prod"},
		Severity:   "warn",
		Since:      "5m",
		Limit:      10,
	})
	require.NoError(t, err)

	// service -> attributes -> severity -> time range -> limit
	wantOrder := []string{"service_name", "attributes[", "severity", "timestamp", "LIMIT"}
	last := -1
	for _, token := range wantOrder {
		idx := strings.Index(sql, token)
		require.NotEqualf(t, -1, idx, "sql %q missing expected token %q", sql, token)
		require.GreaterOrEqualf(t, idx, last, "sql %q: token %q out of order", sql, token)
		last = idx
	}
}

// TestFlagSQLEquivalence is property 5 (§8): the result of the flag-based
// query must equal the result of running the equivalent SQL string
// directly against the same store.
func TestFlagSQLEquivalence(t *testing.T) {
	s := store.New(store.Config{MaxItems: 10}, nil)
	s.InsertLogs([]store.LogRecord{
		{ServiceName: "svcA", SeverityText: "ERROR", SeverityNumber: 17, Body: "boom"},
		{ServiceName: "svcA", SeverityText: "WARN", SeverityNumber: 13, Body: "warned"},
		{ServiceName: "svcB", SeverityText: "ERROR", SeverityNumber: 17, Body: "other service"},
	})
	eng := sqlengine.New(s)

	flags := Flags{Service: "svcA", Severity: "error", Limit: 5}
	lowered, err := Lower(sqlengine.TableLogs, flags)
	require.NoError(t, err)

	fromFlags, err := eng.Query(lowered)
	require.NoError(t, err)

	fromSQL, err := eng.Query(
		"SELECT * FROM logs WHERE service_name = 'svcA' AND severity >= 'ERROR' LIMIT 5")
	require.NoError(t, err)

	require.Equal(t, fromSQL.Rows, fromFlags.Rows)
	require.Len(t, fromFlags.Rows, 1)
	require.Equal(t, "boom", fromFlags.Rows[0]["body"])
}

func TestLowerExecutesAgainstStore(t *testing.T) {
	s := store.New(store.Config{MaxItems: 10}, nil)
	s.InsertLogs([]store.LogRecord{
		{ServiceName: "svcA", SeverityText: "ERROR", SeverityNumber: 17, Body: "boom"},
		{ServiceName: "svcB", SeverityText: "INFO", SeverityNumber: 9, Body: "ok"},
	})

	sql, err := Lower(sqlengine.TableLogs, Flags{Service: "svcA"})
	require.NoError(t, err)

	eng := sqlengine.New(s)
	res, err := eng.Query(sql)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "boom", res.Rows[0]["body"])
}

func TestLowerRejectsMismatchedFlagAndTable(t *testing.T) {
	_, err := Lower(sqlengine.TableMetrics, Flags{TraceID: "abcd"})
	require.Error(t, err)
}

// TestLowerEscapesBackslashesInAttributeValues guards against a value
// containing a literal backslash being corrupted by the lexer's
// backslash-escape handling on the way back in.
func TestLowerEscapesBackslashesInAttributeValues(t *testing.T) {
	s := store.New(store.Config{MaxItems: 10}, nil)
	s.InsertLogs([]store.LogRecord{
		{ServiceName: "svcA", Body: "boom", Attributes: store.AttrMap{
			"path": store.StringAttr(`C:\Users\foo`),
		}},
	})

	sql, err := Lower(sqlengine.TableLogs, Flags{
		Attributes: map[string]string{"path": `C:\Users\foo`},
	})
	require.NoError(t, err)

	eng := sqlengine.New(s)
	res, err := eng.Query(sql)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, "boom", res.Rows[0]["body"])
}
