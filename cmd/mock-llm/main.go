// Package main implements a mock LLM server for integration testing.
// It serves OpenAI-compatible /v1/chat/completions responses from JSON
// fixture files, so the full generate loop can run fast, deterministic,
// and offline: point the ollama provider at this server and each call
// returns the next fixture document.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 11434
//
// Fixture files are JSON process documents named by model (e.g.,
// "mock-bpmn.json" answers requests for model "mock-bpmn"). Numbered
// files ("mock-bpmn.1.json", "mock-bpmn.2.json") are served in call
// order, with the base file as repeating fallback once they run out.
// That makes multi-iteration improvement runs scriptable.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type server struct {
	mu       sync.Mutex
	fixtures map[string][]string // model → ordered fixture contents
	calls    map[string]int      // model → calls served
}

func newServer(fixtures map[string][]string) *server {
	return &server{
		fixtures: fixtures,
		calls:    make(map[string]int),
	}
}

// next picks the fixture for the model's current call count: numbered
// fixtures first, then the last entry repeats.
func (s *server) next(model string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, ok := s.fixtures[model]
	if !ok || len(contents) == 0 {
		return "", false
	}

	idx := s.calls[model]
	s.calls[model]++
	if idx >= len(contents) {
		idx = len(contents) - 1
	}
	return contents[idx], true
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}

	content, ok := s.next(req.Model)
	if !ok {
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}

	log.Printf("served %s (%d messages in)", req.Model, len(req.Messages))

	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     len(strings.Fields(flattenMessages(req.Messages))),
			CompletionTokens: len(strings.Fields(content)),
		},
	}
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func flattenMessages(messages []chatMessage) string {
	parts := make([]string, len(messages))
	for i, m := range messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, " ")
}

// numberedFixture matches "name.3.json".
var numberedFixture = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads the fixtures directory into model → ordered
// contents. Numbered files sort numerically; the unnumbered base file
// goes last as the repeating fallback.
func loadFixtures(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixtures dir: %w", err)
	}

	type numbered struct {
		order   int
		content string
	}
	sequences := make(map[string][]numbered)
	bases := make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", entry.Name(), err)
		}

		if m := numberedFixture.FindStringSubmatch(entry.Name()); m != nil {
			order, _ := strconv.Atoi(m[2])
			sequences[m[1]] = append(sequences[m[1]], numbered{order: order, content: string(data)})
			continue
		}

		model := strings.TrimSuffix(entry.Name(), ".json")
		bases[model] = string(data)
	}

	fixtures := make(map[string][]string)
	for model, seq := range sequences {
		sort.Slice(seq, func(i, j int) bool { return seq[i].order < seq[j].order })
		for _, n := range seq {
			fixtures[model] = append(fixtures[model], n.content)
		}
	}
	for model, content := range bases {
		fixtures[model] = append(fixtures[model], content)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no .json fixtures found in %s", dir)
	}
	return fixtures, nil
}

func main() {
	fixturesDir := flag.String("fixtures", "fixtures", "Directory of JSON fixture files")
	port := flag.Int("port", 11434, "Port to listen on")
	flag.Parse()

	fixtures, err := loadFixtures(*fixturesDir)
	if err != nil {
		log.Fatalf("load fixtures: %v", err)
	}

	models := make([]string, 0, len(fixtures))
	for model := range fixtures {
		models = append(models, model)
	}
	sort.Strings(models)
	log.Printf("serving %d model(s): %s", len(models), strings.Join(models, ", "))

	srv := newServer(fixtures)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", srv.handleChat)
	mux.HandleFunc("/health", srv.handleHealth)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mock-llm listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}
