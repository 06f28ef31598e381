package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/bpmnforge/config"
	"github.com/c360studio/bpmnforge/llm"
	"github.com/c360studio/bpmnforge/pipeline"
	"github.com/c360studio/bpmnforge/process"
	"github.com/c360studio/bpmnforge/source/webcontext"
)

// generateOptions collects the generate command flags.
type generateOptions struct {
	file          string
	domain        string
	qualityTarget float64
	maxIterations int
	timeBudget    time.Duration
	provider      string
	model         string
	endpoint      string
	contextURL    string
	contextFile   string
	output        string
	quiet         bool
}

func generateCmd(configPath *string) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate [description]",
		Short: "Generate a BPMN diagram from a process description",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyOverrides(cfg, opts, cmd)

			description, err := readDescription(args, opts.file)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, err := runGeneration(ctx, cfg, description, opts)
			if err != nil {
				return err
			}

			if !opts.quiet {
				fmt.Fprintln(os.Stderr, result.Report())
			}
			// The best diagram is written even below target; the exit
			// code still signals that the run fell short.
			if result.FinalXML != "" {
				if err := writeOutput(opts.output, result.FinalXML); err != nil {
					return err
				}
			}
			if !result.Success {
				if result.Err != nil {
					return fmt.Errorf("generation failed: %w", result.Err)
				}
				return fmt.Errorf("quality target not reached: %s", result.StopReason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read the description from a file")
	cmd.Flags().StringVar(&opts.domain, "domain", "", "Business domain (general, banking, insurance, healthcare, logistics)")
	cmd.Flags().Float64Var(&opts.qualityTarget, "quality-target", 0, "Overall quality score that stops the loop (0-1)")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "Maximum generation passes")
	cmd.Flags().DurationVar(&opts.timeBudget, "time-budget", 0, "Wall-clock budget for the whole run")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "LLM provider (anthropic, openai, ollama)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model identifier")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Provider base URL")
	cmd.Flags().StringVar(&opts.contextURL, "context-url", "", "HTTPS URL whose readable text grounds the generation")
	cmd.Flags().StringVar(&opts.contextFile, "context-file", "", "File whose text grounds the generation")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output path for the BPMN XML (default stdout)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress the run report")

	return cmd
}

// applyOverrides folds explicit flags over the loaded config.
func applyOverrides(cfg *config.Config, opts *generateOptions, cmd *cobra.Command) {
	if opts.provider != "" {
		cfg.LLM.Provider = opts.provider
	}
	if opts.model != "" {
		cfg.LLM.Model = opts.model
	}
	if opts.endpoint != "" {
		cfg.LLM.Endpoint = opts.endpoint
	}
	if cmd.Flags().Changed("quality-target") {
		cfg.Pipeline.QualityTarget = opts.qualityTarget
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.Pipeline.MaxIterations = opts.maxIterations
	}
	if cmd.Flags().Changed("time-budget") {
		cfg.Pipeline.TimeBudget = opts.timeBudget
	}
}

func readDescription(args []string, file string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read description file: %w", err)
		}
		return string(data), nil
	}
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	return "", fmt.Errorf("a process description is required (argument or --file)")
}

// gatherSourceMaterial combines --context-file and --context-url text.
func gatherSourceMaterial(ctx context.Context, opts *generateOptions) (string, error) {
	var parts []string

	if opts.contextFile != "" {
		data, err := os.ReadFile(opts.contextFile)
		if err != nil {
			return "", fmt.Errorf("read context file: %w", err)
		}
		parts = append(parts, string(data))
	}

	if opts.contextURL != "" {
		fetcher := webcontext.NewFetcher(30 * time.Second)
		page, err := fetcher.Fetch(ctx, opts.contextURL)
		if err != nil {
			return "", fmt.Errorf("fetch context URL: %w", err)
		}
		slog.Info("Fetched web context", "url", page.URL, "title", page.Title, "chars", len(page.Content))
		parts = append(parts, page.Content)
	}

	return strings.Join(parts, "\n\n"), nil
}

func runGeneration(ctx context.Context, cfg *config.Config, description string, opts *generateOptions) (*pipeline.Result, error) {
	sourceMaterial, err := gatherSourceMaterial(ctx, opts)
	if err != nil {
		return nil, err
	}

	pctx, err := process.NewAnalyzer().Analyze(description, sourceMaterial, process.ParseDomain(opts.domain))
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(cfg.Endpoints())
	if err != nil {
		return nil, err
	}

	temperature := cfg.LLM.Temperature
	return pipeline.NewController().Run(ctx, pipeline.Request{
		Context:       pctx,
		Generator:     client,
		QualityTarget: cfg.Pipeline.QualityTarget,
		MaxIterations: cfg.Pipeline.MaxIterations,
		TimeBudget:    cfg.Pipeline.TimeBudget,
		Temperature:   &temperature,
	})
}

func writeOutput(path, xml string) error {
	if path == "" || path == "-" {
		fmt.Println(xml)
		return nil
	}
	if err := os.WriteFile(path, []byte(xml), 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("Wrote diagram", "path", path)
	return nil
}
