package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusErrorCarriesReason(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"player_not_found"}`)
	}))
	defer ts.Close()

	c := newRelayClient(testConfig(ts.URL + "/"))
	err := c.UpdatePlayer(context.Background(), outbound(1))
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "player_not_found", se.Reason)
	assert.True(t, isRejection(err))
}

func TestMalformedResponseIsTransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"players":`)
	}))
	defer ts.Close()

	c := newRelayClient(testConfig(ts.URL))
	_, err := c.Players(context.Background())
	require.Error(t, err)
	assert.False(t, isRejection(err))
}

func TestServerErrorsAreNotRejections(t *testing.T) {
	assert.False(t, isRejection(&StatusError{Code: http.StatusBadGateway}))
	assert.False(t, isRejection(errors.New("connection refused")))
	assert.True(t, isRejection(fmt.Errorf("wrapped: %w", &StatusError{Code: http.StatusBadRequest})))
}
