package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadFixturesOrdersNumberedBeforeBase(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-bpmn.2.json", `{"v": 2}`)
	writeFixture(t, dir, "mock-bpmn.1.json", `{"v": 1}`)
	writeFixture(t, dir, "mock-bpmn.json", `{"v": "base"}`)
	writeFixture(t, dir, "other.json", `{"v": "other"}`)
	writeFixture(t, dir, "notes.txt", "ignored")

	fixtures, err := loadFixtures(dir)
	require.NoError(t, err)

	require.Len(t, fixtures["mock-bpmn"], 3)
	assert.Equal(t, `{"v": 1}`, fixtures["mock-bpmn"][0])
	assert.Equal(t, `{"v": 2}`, fixtures["mock-bpmn"][1])
	assert.Equal(t, `{"v": "base"}`, fixtures["mock-bpmn"][2])
	assert.Len(t, fixtures["other"], 1)
}

func TestLoadFixturesEmptyDirFails(t *testing.T) {
	_, err := loadFixtures(t.TempDir())
	assert.Error(t, err)
}

func chat(t *testing.T, handler http.HandlerFunc, model string) *chatResponse {
	t.Helper()
	body, _ := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: "generate"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		return nil
	}
	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

func TestHandleChatServesSequentially(t *testing.T) {
	srv := newServer(map[string][]string{
		"mock-bpmn": {`{"v": 1}`, `{"v": 2}`},
	})

	first := chat(t, srv.handleChat, "mock-bpmn")
	require.NotNil(t, first)
	assert.Equal(t, `{"v": 1}`, first.Choices[0].Message.Content)

	second := chat(t, srv.handleChat, "mock-bpmn")
	require.NotNil(t, second)
	assert.Equal(t, `{"v": 2}`, second.Choices[0].Message.Content)

	// Exhausted sequences repeat the last fixture.
	third := chat(t, srv.handleChat, "mock-bpmn")
	require.NotNil(t, third)
	assert.Equal(t, `{"v": 2}`, third.Choices[0].Message.Content)
}

func TestHandleChatUnknownModel(t *testing.T) {
	srv := newServer(map[string][]string{})
	assert.Nil(t, chat(t, srv.handleChat, "missing"))
}

func TestHandleChatRejectsGet(t *testing.T) {
	srv := newServer(map[string][]string{"m": {`{}`}})
	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil)
	rec := httptest.NewRecorder()
	srv.handleChat(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
