package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDumpSchemaFetchesAndReEmitsAsYAML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/debug/schema", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"sky","tables":[{"name":"flights","columns":["route","gate"]}]}]`))
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	var buf bytes.Buffer
	require.NoError(t, dumpSchema(&buf, addr))

	var out []schemaKeyspace
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "sky", out[0].Name)
	require.Len(t, out[0].Tables, 1)
	assert.Equal(t, "flights", out[0].Tables[0].Name)
	assert.Equal(t, []string{"route", "gate"}, out[0].Tables[0].Columns)
}

func TestDumpSchemaPropagatesHTTPErrors(t *testing.T) {
	var buf bytes.Buffer
	err := dumpSchema(&buf, "127.0.0.1:1")
	assert.Error(t, err)
}

func TestNewSchemaCmdHasDumpSubcommand(t *testing.T) {
	cmd := newSchemaCmd()
	found := false
	for _, c := range cmd.Commands() {
		if c.Use == "dump" {
			found = true
		}
	}
	assert.True(t, found)
}
