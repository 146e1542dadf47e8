package common_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/common"
)

type errorEnvelope struct {
	Error common.ErrorBody `json:"error"`
}

func TestWriteErrorMapsKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", common.ValidationError("quantity must be at least 1"), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"not found", common.NotFoundError("product", 7), http.StatusNotFound, "NOT_FOUND"},
		{"usage", common.PromoUsageExceededError(3), http.StatusConflict, "PROMO_USAGE_EXCEEDED"},
		{"conflict", common.PersistenceConflictError(5, errors.New("duplicate")), http.StatusServiceUnavailable, "PERSISTENCE_CONFLICT"},
		{"wrapped sentinel", fmt.Errorf("load branch: %w", common.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			common.WriteError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
			var body errorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tc.code, body.Error.Code)
		})
	}
}

func TestAppErrorsUnwrapToSentinels(t *testing.T) {
	require.ErrorIs(t, common.ValidationError("bad"), common.ErrValidation)
	require.ErrorIs(t, common.PromoUsageExceededError(1), common.ErrPromoUsageExceeded)
	require.ErrorIs(t, common.PersistenceConflictError(2, errors.New("x")), common.ErrPersistenceConflict)
	require.ErrorIs(t, common.ForbiddenError("nope"), common.ErrForbidden)
}
