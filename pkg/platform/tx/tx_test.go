package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTxIgnoresNil(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTx(ctx, nil))
	_, ok := From(ctx)
	assert.False(t, ok)
}

func TestConnPrefersContextTransaction(t *testing.T) {
	db := &sql.DB{}
	assert.Same(t, db, Conn(context.Background(), db).(*sql.DB))

	txn := &sql.Tx{}
	ctx := WithTx(context.Background(), txn)
	got, ok := From(ctx)
	assert.True(t, ok)
	assert.Same(t, txn, got)
	assert.Same(t, txn, Conn(ctx, db).(*sql.Tx))
}
