package noderunner

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSecretServer(values map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/get/")
		value, ok := values[key]
		if !ok || value == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"key": key, "value": value})
	}))
}

func TestSecretResolver_SubstitutesPlaceholder(t *testing.T) {
	srv := newSecretServer(map[string]string{"OPENAI_KEY": "sk-xyz"})
	defer srv.Close()

	r := NewSecretResolver(srv.URL)
	out, err := r.Resolve(`KEY = "{{{secret::OPENAI_KEY}}}"`)
	require.NoError(t, err)
	assert.Equal(t, `KEY = "sk-xyz"`, out)
}

func TestSecretResolver_MultiplePlaceholders(t *testing.T) {
	srv := newSecretServer(map[string]string{"A": "1", "B": "2"})
	defer srv.Close()

	r := NewSecretResolver(srv.URL)
	out, err := r.Resolve(`{{{secret::A}}}-{{{secret::B}}}`)
	require.NoError(t, err)
	assert.Equal(t, "1-2", out)
}

func TestSecretResolver_MissingKey_FailsFast(t *testing.T) {
	srv := newSecretServer(map[string]string{})
	defer srv.Close()

	r := NewSecretResolver(srv.URL)
	_, err := r.Resolve(`{{{secret::NOPE}}}`)
	assert.ErrorIs(t, err, ErrSecretResolution)
}

func TestSecretResolver_EmptyValue_FailsFast(t *testing.T) {
	srv := newSecretServer(map[string]string{"EMPTY": ""})
	defer srv.Close()

	r := NewSecretResolver(srv.URL)
	_, err := r.Resolve(`{{{secret::EMPTY}}}`)
	assert.ErrorIs(t, err, ErrSecretResolution)
}

func TestSecretResolver_NoPlaceholders_Unchanged(t *testing.T) {
	srv := newSecretServer(map[string]string{})
	defer srv.Close()

	r := NewSecretResolver(srv.URL)
	out, err := r.Resolve("plain code, no secrets here")
	require.NoError(t, err)
	assert.Equal(t, "plain code, no secrets here", out)
}
