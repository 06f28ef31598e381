package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/c360studio/bpmnforge/config"
)

func watchCmd(configPath *string) *cobra.Command {
	opts := &generateOptions{}
	var dir string

	cmd := &cobra.Command{
		Use:   "watch [directory]",
		Short: "Watch a directory and regenerate diagrams when descriptions change",
		Long: `watch monitors a directory for process description files. Whenever a
matching file is created or modified, a diagram is generated next to it
with the .bpmn extension. Which files match is controlled by the
watch.include and watch.exclude patterns in the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyOverrides(cfg, opts, cmd)

			dir = "."
			if len(args) == 1 {
				dir = args[0]
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, cfg, absDir, opts)
		},
	}

	cmd.Flags().StringVar(&opts.domain, "domain", "", "Business domain for all generated diagrams")
	cmd.Flags().Float64Var(&opts.qualityTarget, "quality-target", 0, "Overall quality score that stops the loop (0-1)")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "Maximum generation passes")
	cmd.Flags().DurationVar(&opts.timeBudget, "time-budget", 0, "Wall-clock budget per diagram")

	return cmd
}

func runWatch(ctx context.Context, cfg *config.Config, dir string, opts *generateOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, dir); err != nil {
		return err
	}

	slog.Info("Watching for description changes",
		"dir", dir,
		"include", cfg.Watch.Include,
		"exclude", cfg.Watch.Exclude)

	debouncer := newDebouncer(cfg.Watch.Debounce)
	defer debouncer.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// New directories join the watch set.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addRecursive(watcher, event.Name); err != nil {
						slog.Warn("Failed to watch new directory", "dir", event.Name, "error", err)
					}
					continue
				}
			}

			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}

			rel, err := filepath.Rel(dir, event.Name)
			if err != nil || !shouldProcess(rel, cfg.Watch.Include, cfg.Watch.Exclude) {
				continue
			}

			path := event.Name
			debouncer.trigger(path, func() {
				processDescriptionFile(ctx, cfg, path, opts)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", "error", err)
		}
	}
}

// shouldProcess applies include then exclude doublestar patterns to a
// path relative to the watch root.
func shouldProcess(rel string, include, exclude []string) bool {
	rel = filepath.ToSlash(rel)

	matched := false
	for _, pattern := range include {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, pattern := range exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return false
		}
	}
	return true
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return fs.SkipDir
		}
		return watcher.Add(path)
	})
}

func processDescriptionFile(ctx context.Context, cfg *config.Config, path string, opts *generateOptions) {
	slog.Info("Description changed, regenerating", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Error("Failed to read description", "path", path, "error", err)
		return
	}
	if strings.TrimSpace(string(data)) == "" {
		slog.Debug("Skipping empty description", "path", path)
		return
	}

	result, err := runGeneration(ctx, cfg, string(data), opts)
	if err != nil {
		slog.Error("Generation failed", "path", path, "error", err)
		return
	}
	if result.FinalXML == "" {
		slog.Error("Generation produced no usable diagram", "path", path, "stop_reason", result.StopReason)
		return
	}

	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".bpmn"
	if err := os.WriteFile(outPath, []byte(result.FinalXML), 0644); err != nil {
		slog.Error("Failed to write diagram", "path", outPath, "error", err)
		return
	}

	// Below-target diagrams are still written; the log level flags them.
	level := slog.LevelInfo
	if !result.Success {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "Diagram updated",
		"path", outPath,
		"score", result.FinalMetrics.Overall(),
		"level", result.FinalMetrics.Level(),
		"stop_reason", result.StopReason,
		"iterations", len(result.Iterations))
}

// debouncer coalesces rapid events per path.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	pending map[string]*time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &debouncer{
		delay:   delay,
		pending: make(map[string]*time.Timer),
	}
}

// trigger schedules fn for the path, resetting any pending run.
func (d *debouncer) trigger(path string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.pending[path]; ok {
		timer.Stop()
	}
	d.pending[path] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.pending, path)
		d.mu.Unlock()
		fn()
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, timer := range d.pending {
		timer.Stop()
	}
	d.pending = make(map[string]*time.Timer)
}
