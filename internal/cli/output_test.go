package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedstore/internal/account"
	"github.com/roach88/feedstore/internal/feed"
	"github.com/roach88/feedstore/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("CONSTRAINT_VIOLATION", "email already exists", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "CONSTRAINT_VIOLATION", resp.Error.Code)
	assert.Equal(t, "email already exists", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]int64{"post_id": 3, "likes_count": 2}
	err := formatter.Error("COUNT_MISMATCH", "like counts disagree", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("Like counts consistent")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Like counts consistent")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("CONSTRAINT_VIOLATION", "email already exists", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [CONSTRAINT_VIOLATION]")
	assert.Contains(t, buf.String(), "email already exists")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"slot": "feedstore_database"}
	err := formatter.Error("CORRUPT_SNAPSHOT", "snapshot quarantined", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [CORRUPT_SNAPSHOT]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("attached %s", "cat.png")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "attached cat.png")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status: "ok",
		Data:   map[string]int{"count": 42},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    "VALIDATION",
		Message: "passwords do not match",
		Details: []string{"confirm_password"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "VALIDATION", decoded.Code)
	assert.Equal(t, "passwords do not match", decoded.Message)
}

func TestOutputFormatter_JSONSuccessReportsBackend(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf, Backend: "relational"}

	require.NoError(t, formatter.Success(map[string]int64{"id": 1}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "relational", resp.Backend)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		exit int
	}{
		{"validation", &account.ValidationError{Field: "Email", Message: "bad"}, CodeValidation, ExitFailure},
		{"empty comment", feed.ErrEmptyComment, CodeValidation, ExitFailure},
		{"missing fields", feed.ErrMissingFields, CodeValidation, ExitFailure},
		{"credentials", account.ErrInvalidCredentials, CodeInvalidCredentials, ExitFailure},
		{"email taken", fmt.Errorf("%w: a@b.c", account.ErrEmailTaken), "CONSTRAINT_VIOLATION", ExitFailure},
		{"not logged in", account.ErrNotLoggedIn, CodeNotLoggedIn, ExitFailure},
		{"post not found", fmt.Errorf("%w: 9", feed.ErrPostNotFound), CodeNotFound, ExitFailure},
		{"constraint", store.NewConstraintError("email already exists", nil), "CONSTRAINT_VIOLATION", ExitFailure},
		{"engine", store.NewEngineUnavailableError(errors.New("no cgo")), "ENGINE_UNAVAILABLE", ExitCommandError},
		{"storage", store.NewStorageWriteError("k", errors.New("disk full")), "STORAGE_WRITE_FAILURE", ExitCommandError},
		{"deadline", context.DeadlineExceeded, CodeUnavailable, ExitCommandError},
		{"other", errors.New("boom"), CodeInternal, ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit := classify(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.exit, exit)
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Fail("login failed", account.ErrInvalidCredentials)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeInvalidCredentials, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "login failed")
}

func TestOutputFormatter_Table(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Table([]string{"ID", "Title"}, [][]string{{"1", "Hello"}, {"2", "Tips"}}))

	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "TITLE")
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "Tips")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad config")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "x"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}
