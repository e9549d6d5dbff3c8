package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

type contactBody struct {
	City     string `json:"city" validate:"required,notblank,max=50"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

func decode(t *testing.T, body string) (contactBody, map[string]string, error) {
	t.Helper()
	var dest contactBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	err := DecodeJSONBody(req, &dest)
	if err == nil {
		return dest, nil, nil
	}
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, _ := typed.Details().(map[string]string)
	return dest, details, err
}

func TestDecodeJSONBodyAcceptsValidBody(t *testing.T) {
	got, _, err := decode(t, `{"city":"Berlin","quantity":2}`)
	require.NoError(t, err)
	require.Equal(t, contactBody{City: "Berlin", Quantity: 2}, got)
}

func TestDecodeJSONBodyReportsFields(t *testing.T) {
	cases := map[string]struct {
		body  string
		field string
		msg   string
	}{
		"empty body":  {``, "body", "is required"},
		"not json":    {`city=Berlin`, "body", "must be a JSON object"},
		"two objects": {`{"city":"a","quantity":1}{}`, "body", "must contain a single JSON object"},
		"wrong type":  {`{"city":"a","quantity":"two"}`, "quantity", "must be of type int"},
		"blank city":  {`{"city":"   ","quantity":1}`, "city", "must not be blank"},
		"zero qty":    {`{"city":"a","quantity":0}`, "quantity", "is required"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, details, err := decode(t, tc.body)
			require.Error(t, err)
			require.Equal(t, tc.msg, details[tc.field], "details: %v", details)
		})
	}
}
