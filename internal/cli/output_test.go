package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"entities": 2}))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"entities": float64(2)}, resp.Data)

	buf.Reset()
	require.NoError(t, formatter.Error("E102", "compile failed", map[string]string{"code": "MISSING_WHERE"}))
	resp = CLIResponse{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E102", resp.Error.Code)
	assert.Equal(t, "compile failed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("catalog valid"))
	assert.Equal(t, "catalog valid\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Error("E005", "not found", map[string]string{"dir": "x"}))
	assert.Equal(t, "Error [E005]: not found\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("E005", "not found", map[string]string{"dir": "x"}))
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_Line(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Line(map[string]any{"b": 1, "a": nil}))
	require.NoError(t, formatter.Line(3))
	assert.Equal(t, "{\"a\":null,\"b\":1}\n3\n", buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	testCases := []struct {
		name    string
		verbose bool
		want    string
	}{
		{"verbose enabled", true, "Loaded 2\n"},
		{"verbose disabled", false, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, diag := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: tc.verbose}

			formatter.VerboseLog("Loaded %d", 2)
			assert.Empty(t, out.String())
			assert.Equal(t, tc.want, diag.String())
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "missing")))

	cause := errors.New("disk")
	wrapped := WrapExitError(ExitCommandError, "open", cause)
	assert.Equal(t, "open: disk", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}
