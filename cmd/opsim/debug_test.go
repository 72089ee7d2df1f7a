package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugMux(t *testing.T) {
	mux, err := debugMux()
	require.NoError(t, err)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	for _, path := range []string{"/debug/vars", "/debug/statsviz/", "/debug/pprof/"} {
		resp, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
