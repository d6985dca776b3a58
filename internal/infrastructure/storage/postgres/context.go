package postgres

import (
	"context"
	"fmt"

	"magazzino/internal/core/tenant"
)

// MustGetTxManager returns the concrete *TxManager from context, for
// infrastructure code that needs GetQuerier()/GetTx(). Domain code
// depends only on internal/core/tx.Manager.
func MustGetTxManager(ctx context.Context) *TxManager {
	txm := tenant.MustGetTxManager(ctx)
	postgresTxm, ok := txm.(*TxManager)
	if !ok || postgresTxm == nil {
		panic(fmt.Sprintf("TxManager in context has unexpected type: %T", txm))
	}
	return postgresTxm
}

