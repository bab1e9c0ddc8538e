package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeTransaction_RejectsMissingID(t *testing.T) {
	_, err := decodeTransaction([]byte(`{"amount": 100}`))
	require.Error(t, err)
}

func TestDecodeTransaction_RejectsNonPositiveAmount(t *testing.T) {
	_, err := decodeTransaction([]byte(`{"transaction_id": "t1", "amount": 0}`))
	require.Error(t, err)
}

func TestDecodeTransaction_AcceptsWellFormed(t *testing.T) {
	txn, err := decodeTransaction([]byte(`{"transaction_id": "t1", "sender_id": "s", "receiver_id": "r", "amount": 100, "timestamp": "2026-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, "t1", txn.TransactionID)
	require.Equal(t, 100.0, txn.Amount.Float64())
}

func TestDecodeTransaction_RejectsMalformedJSON(t *testing.T) {
	_, err := decodeTransaction([]byte(`not json`))
	require.Error(t, err)
}
