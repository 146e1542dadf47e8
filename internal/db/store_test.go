package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestClassifyMapsRetryableCodes(t *testing.T) {
	cases := []struct {
		name     string
		code     string
		conflict bool
	}{
		{name: "unique violation", code: "23505", conflict: true},
		{name: "serialization failure", code: "40001", conflict: true},
		{name: "deadlock", code: "40P01", conflict: true},
		{name: "foreign key violation", code: "23503"},
		{name: "check violation", code: "23514"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tc.code, ConstraintName: "transactions_transaction_number_key"}
			in := fmt.Errorf("insert transaction: %w", pgErr)

			err := classify(in)
			require.Equal(t, tc.conflict, errors.Is(err, ErrConflict))

			var got *pgconn.PgError
			require.True(t, errors.As(err, &got))
			require.Equal(t, tc.code, got.Code)

			var conflict *ConflictError
			if tc.conflict {
				require.True(t, errors.As(err, &conflict))
				require.Equal(t, "transactions_transaction_number_key", conflict.Constraint)
				require.Contains(t, err.Error(), "write conflict on transactions_transaction_number_key")
				return
			}
			require.False(t, errors.As(err, &conflict))
			require.Same(t, in, err)
		})
	}
}

func TestClassifyPassesThroughOtherErrors(t *testing.T) {
	require.NoError(t, classify(nil))

	plain := errors.New("connection reset")
	require.Same(t, plain, classify(plain))
	require.False(t, errors.Is(classify(ErrNoRows), ErrConflict))
}

func TestNumberPrefixQueryMatchesLiterally(t *testing.T) {
	// LIKE would read _ and % in a configured prefix as wildcards.
	require.NotContains(t, countTransactionsByNumberPrefix, "LIKE")
	require.Contains(t, countTransactionsByNumberPrefix, "left(transaction_number, length($1)) = $1")
}
