package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func strPtr(s string) *string { return &s }

// recordingConn captures every executed statement and feeds back scripted
// RowsAffected values, one per statement.
type recordingConn struct {
	queries  []string
	affected []int64
}

func (c *recordingConn) exec(query string) (driver.Result, error) {
	c.queries = append(c.queries, query)
	var rows int64
	if len(c.affected) > 0 {
		rows = c.affected[0]
		c.affected = c.affected[1:]
	}
	return driver.RowsAffected(rows), nil
}

func (c *recordingConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	return c.exec(query)
}

func (c *recordingConn) Prepare(query string) (driver.Stmt, error) {
	return &recordingStmt{conn: c, query: query}, nil
}

func (c *recordingConn) Close() error              { return nil }
func (c *recordingConn) Begin() (driver.Tx, error) { return c, nil }
func (c *recordingConn) Commit() error             { return nil }
func (c *recordingConn) Rollback() error           { return nil }

type recordingStmt struct {
	conn  *recordingConn
	query string
}

func (s *recordingStmt) Close() error  { return nil }
func (s *recordingStmt) NumInput() int { return -1 }

func (s *recordingStmt) Exec([]driver.Value) (driver.Result, error) {
	return s.conn.exec(s.query)
}

func (s *recordingStmt) Query([]driver.Value) (driver.Rows, error) {
	return nil, errors.New("queries are not scripted")
}

type recordingConnector struct {
	conn *recordingConn
}

func (c *recordingConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c *recordingConnector) Driver() driver.Driver                        { return recordingDriver{} }

type recordingDriver struct{}

func (recordingDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("open through the connector")
}

func newRecordingDB(t *testing.T, affected ...int64) (*gorm.DB, *recordingConn) {
	t.Helper()

	conn := &recordingConn{affected: affected}
	sqlDB := sql.OpenDB(&recordingConnector{conn: conn})
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)

	return gdb, conn
}

func TestLookupCandidatesOrder(t *testing.T) {
	key := OrderLookupKey{
		StripePaymentIntentID: strPtr("pi_1"),
		StripeSessionID:       strPtr("cs_1"),
	}

	cands := key.candidates()
	require.Len(t, cands, 2)

	// Payment intent first: it is the stable key, the session id only a
	// fallback for rows created before the intent was known.
	assert.Equal(t, "stripe_payment_intent_id", cands[0].column)
	assert.Equal(t, "pi_1", cands[0].value)
	assert.Equal(t, "stripe_session_id", cands[1].column)
	assert.Equal(t, "cs_1", cands[1].value)
}

func TestLookupCandidatesSkipsMissingIdentifiers(t *testing.T) {
	tests := []struct {
		name string
		key  OrderLookupKey
		want []lookupCandidate
	}{
		{
			name: "both nil",
			key:  OrderLookupKey{},
			want: nil,
		},
		{
			name: "empty strings",
			key:  OrderLookupKey{StripePaymentIntentID: strPtr(""), StripeSessionID: strPtr("  ")},
			want: nil,
		},
		{
			name: "session only",
			key:  OrderLookupKey{StripeSessionID: strPtr("cs_1")},
			want: []lookupCandidate{{column: "stripe_session_id", value: "cs_1"}},
		},
		{
			name: "intent only",
			key:  OrderLookupKey{StripePaymentIntentID: strPtr("pi_1")},
			want: []lookupCandidate{{column: "stripe_payment_intent_id", value: "pi_1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.candidates())
		})
	}
}

func TestUpdateOrderMetadataFallsBackToSessionID(t *testing.T) {
	// Intent lookup matches nothing, session lookup matches one row: exactly
	// two statements, in candidate order, reporting success.
	gdb, conn := newRecordingDB(t, 0, 1)
	svc := NewOrderService(gdb)

	updated, err := svc.UpdateOrderMetadata(context.Background(), OrderLookupKey{
		StripePaymentIntentID: strPtr("pi_1"),
		StripeSessionID:       strPtr("cs_1"),
	}, map[string]interface{}{"dispute_id": "dp_1"})

	require.NoError(t, err)
	assert.True(t, updated)
	require.Len(t, conn.queries, 2)
	assert.Contains(t, conn.queries[0], "stripe_payment_intent_id =")
	assert.Contains(t, conn.queries[1], "stripe_session_id =")
	assert.Contains(t, conn.queries[0], "COALESCE(metadata, '{}'::jsonb) ||")
}

func TestUpdateOrderMetadataStopsAfterFirstMatch(t *testing.T) {
	gdb, conn := newRecordingDB(t, 1)
	svc := NewOrderService(gdb)

	updated, err := svc.UpdateOrderMetadata(context.Background(), OrderLookupKey{
		StripePaymentIntentID: strPtr("pi_1"),
		StripeSessionID:       strPtr("cs_1"),
	}, map[string]interface{}{"dispute_id": "dp_1"})

	require.NoError(t, err)
	assert.True(t, updated)
	require.Len(t, conn.queries, 1)
	assert.Contains(t, conn.queries[0], "stripe_payment_intent_id =")
}

func TestUpdateOrderMetadataNoRowMatches(t *testing.T) {
	gdb, conn := newRecordingDB(t, 0, 0)
	svc := NewOrderService(gdb)

	updated, err := svc.UpdateOrderMetadata(context.Background(), OrderLookupKey{
		StripePaymentIntentID: strPtr("pi_1"),
		StripeSessionID:       strPtr("cs_1"),
	}, map[string]interface{}{"dispute_id": "dp_1"})

	require.NoError(t, err)
	assert.False(t, updated)
	assert.Len(t, conn.queries, 2)
}

func TestOrderConflictAssignmentsPreserveStoredValues(t *testing.T) {
	set := assignmentsByColumn(t, orderConflictAssignments())

	// A redelivery carrying a sparse field subset must keep the stored value
	// for every column it omits.
	preserved := []string{
		"stripe_session_id",
		"stripe_charge_id",
		"currency",
		"customer_email",
		"customer_name",
		"payment_status",
		"payment_method",
	}
	for _, column := range preserved {
		require.Contains(t, set, column)
		expr := fmt.Sprintf("%v", set[column])
		assert.Contains(t, expr, "NULLIF(excluded."+column+", '')", column)
		assert.Contains(t, expr, "orders."+column, column)
	}

	amount := fmt.Sprintf("%v", set["amount_total"])
	assert.Contains(t, amount, "NULLIF(excluded.amount_total, 0)")
	assert.Contains(t, amount, "orders.amount_total")

	metadata := fmt.Sprintf("%v", set["metadata"])
	assert.Contains(t, metadata, "||")
	assert.Contains(t, set, "updated_at")
}

func TestUpdateOrderMetadataNoUsableKey(t *testing.T) {
	svc := NewOrderService(nil)

	updated, err := svc.UpdateOrderMetadata(context.Background(), OrderLookupKey{}, map[string]interface{}{
		"dispute_id": "dp_1",
	})
	require.NoError(t, err)
	assert.False(t, updated)

	updated, err = svc.UpdateOrderMetadata(context.Background(), OrderLookupKey{
		StripePaymentIntentID: strPtr("pi_1"),
	}, nil)
	require.NoError(t, err)
	assert.False(t, updated)
}
