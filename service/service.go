// Package service exposes the generation pipeline over NATS
// request/reply. One subject, JSON in, JSON out; replies always come
// back, carrying the error when the run failed.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/bpmnforge/llm"
	"github.com/c360studio/bpmnforge/pipeline"
	"github.com/c360studio/bpmnforge/process"
)

// queueGroup load-balances requests across service instances.
const queueGroup = "bpmnforge"

// GenerateRequest is the wire format of one generation request.
type GenerateRequest struct {
	Description       string  `json:"description"`
	Domain            string  `json:"domain,omitempty"`
	SourceMaterial    string  `json:"source_material,omitempty"`
	QualityTarget     float64 `json:"quality_target,omitempty"`
	MaxIterations     int     `json:"max_iterations,omitempty"`
	TimeBudgetSeconds int     `json:"time_budget_seconds,omitempty"`
}

// IterationSummary is the per-iteration slice of the reply.
type IterationSummary struct {
	Index      int     `json:"index"`
	Score      float64 `json:"score"`
	DurationMs int64   `json:"duration_ms"`
}

// GenerateReply is the wire format of the reply.
type GenerateReply struct {
	Success      bool               `json:"success"`
	BPMNXML      string             `json:"bpmn_xml,omitempty"`
	QualityScore float64            `json:"quality_score"`
	QualityLevel string             `json:"quality_level,omitempty"`
	Iterations   []IterationSummary `json:"iterations,omitempty"`
	StopReason   string             `json:"stop_reason,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Defaults fills unset request fields.
type Defaults struct {
	QualityTarget float64
	MaxIterations int
	TimeBudget    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithController overrides the default pipeline controller, e.g. to
// attach metrics.
func WithController(c *pipeline.Controller) Option {
	return func(s *Service) {
		s.controller = c
	}
}

// Service answers generation requests on one subject.
type Service struct {
	conn       *nats.Conn
	subject    string
	analyzer   *process.Analyzer
	controller *pipeline.Controller
	generator  llm.Generator
	defaults   Defaults
	logger     *slog.Logger

	sub *nats.Subscription
}

// New creates a Service. The connection stays owned by the caller.
func New(conn *nats.Conn, subject string, generator llm.Generator, defaults Defaults, opts ...Option) (*Service, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}

	s := &Service{
		conn:       conn,
		subject:    subject,
		analyzer:   process.NewAnalyzer(),
		controller: pipeline.NewController(),
		generator:  generator,
		defaults:   defaults,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start subscribes and serves until Stop. Each request runs in its own
// goroutine; ctx bounds all in-flight runs.
func (s *Service) Start(ctx context.Context) error {
	sub, err := s.conn.QueueSubscribe(s.subject, queueGroup, func(msg *nats.Msg) {
		go s.serve(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub

	s.logger.Info("Service listening", "subject", s.subject, "queue", queueGroup)
	return nil
}

// Stop drains the subscription so in-flight replies still go out.
func (s *Service) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Drain()
}

func (s *Service) serve(ctx context.Context, msg *nats.Msg) {
	reply := s.Handle(ctx, msg.Data)

	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("Failed to marshal reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("Failed to respond", "subject", s.subject, "error", err)
	}
}

// Handle runs one request end to end and builds the reply. Exported so
// transports other than NATS (and tests) can reuse the contract.
func (s *Service) Handle(ctx context.Context, data []byte) *GenerateReply {
	var req GenerateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return &GenerateReply{Error: fmt.Sprintf("invalid request: %v", err)}
	}

	pctx, err := s.analyzer.Analyze(req.Description, req.SourceMaterial, process.ParseDomain(req.Domain))
	if err != nil {
		return &GenerateReply{Error: err.Error()}
	}

	run := pipeline.Request{
		Context:       pctx,
		Generator:     s.generator,
		QualityTarget: s.defaults.QualityTarget,
		MaxIterations: s.defaults.MaxIterations,
		TimeBudget:    s.defaults.TimeBudget,
	}
	if req.QualityTarget > 0 {
		run.QualityTarget = req.QualityTarget
	}
	if req.MaxIterations > 0 {
		run.MaxIterations = req.MaxIterations
	}
	if req.TimeBudgetSeconds > 0 {
		run.TimeBudget = time.Duration(req.TimeBudgetSeconds) * time.Second
	}

	result, err := s.controller.Run(ctx, run)
	if err != nil {
		return &GenerateReply{Error: err.Error()}
	}

	reply := &GenerateReply{
		Success:      result.Success,
		BPMNXML:      result.FinalXML,
		QualityScore: result.FinalMetrics.Overall(),
		QualityLevel: result.FinalMetrics.Level(),
		StopReason:   string(result.StopReason),
	}
	if result.Err != nil {
		reply.Error = result.Err.Error()
	}
	for _, iter := range result.Iterations {
		reply.Iterations = append(reply.Iterations, IterationSummary{
			Index:      iter.Index,
			Score:      iter.Metrics.Overall(),
			DurationMs: iter.Duration.Milliseconds(),
		})
	}
	return reply
}
