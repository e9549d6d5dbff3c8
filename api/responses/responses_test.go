package responses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/types"
)

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]int{"order_id": 4})

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.JSONEq(t, `{"Status":true,"Data":{"order_id":4}}`, w.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   pkgerrors.Code
		wantErrors any
	}{
		{
			name:       "field details",
			err:        pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"email": "required"}),
			wantStatus: http.StatusBadRequest,
			wantCode:   pkgerrors.CodeValidation,
			wantErrors: map[string]any{"email": "required"},
		},
		{
			name:       "wrapped typed error keeps its message",
			err:        fmt.Errorf("load: %w", pkgerrors.New(pkgerrors.CodeNotFound, "order not found")),
			wantStatus: http.StatusNotFound,
			wantCode:   pkgerrors.CodeNotFound,
			wantErrors: "order not found",
		},
		{
			name:       "state conflict",
			err:        pkgerrors.New(pkgerrors.CodeStateConflict, "order is not a basket"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   pkgerrors.CodeStateConflict,
			wantErrors: "order is not a basket",
		},
		{
			name:       "untyped error is hidden",
			err:        errors.New("pq: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   pkgerrors.CodeInternal,
			wantErrors: "internal server error",
		},
		{
			name:       "nil error",
			wantStatus: http.StatusInternalServerError,
			wantCode:   pkgerrors.CodeInternal,
			wantErrors: "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), logger.Nop(), w, tt.err)

			require.Equal(t, tt.wantStatus, w.Code)
			var body types.ErrorEnvelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			require.False(t, body.Status)
			require.Equal(t, string(tt.wantCode), body.Code)
			require.Equal(t, tt.wantErrors, body.Errors)
		})
	}
}

func TestWriteErrorWithoutLogger(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeForbidden, "shop owners only"))
	require.Equal(t, http.StatusForbidden, w.Code)
}
