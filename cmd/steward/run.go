package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/capability/builtins"
	"github.com/steward-ai/steward/internal/engine"
	"github.com/steward-ai/steward/internal/events"
	"github.com/steward-ai/steward/internal/plan"
	"github.com/steward-ai/steward/internal/session"
)

var planFile string

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Execute a goal against a plan file",
	Long: `Run executes a goal using the plan in --plan as the planning
service response. Progress events stream to stdout; the final result is
printed when the run reaches a terminal state.`,
	Args: cobra.ExactArgs(1),
	RunE: runGoal,
}

func runGoal(cmd *cobra.Command, args []string) error {
	goal := args[0]
	logger := newLogger()

	ctx := cmd.Context()
	if cfg.Engine.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Engine.RunTimeout)
		defer cancel()
	}

	catalog := capability.NewRegistry()
	builtins.RegisterBuiltins(catalog)

	bus := events.NewBus()
	defer bus.Close()

	store := session.NewInMemoryStore()
	var recorder session.Recorder = session.NopRecorder{}
	if cfg.Session.Enabled {
		recorder = store
	}

	eng := engine.NewEngine(&plan.FilePlanner{Path: planFile}, catalog,
		engine.WithLogger(logger),
		engine.WithEventBus(bus),
		engine.WithRecorder(recorder),
		engine.WithEscalationConfig(cfg.Escalation.ScorerConfig()),
		engine.WithPlanRequests(cfg.Engine.PlanRequests),
	)

	stream, unsubscribe := bus.Subscribe(ctx, nil, cfg.Events.BufferSize)
	defer unsubscribe()

	run := eng.Submit(ctx, goal)
	go func() {
		<-ctx.Done()
		run.Cancel("interrupted")
	}()

	dedup := events.NewDeduplicator()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range stream {
			if !dedup.Accept(event) {
				continue
			}
			printEvent(event)
			if event.Type == events.EventRunCompleted ||
				event.Type == events.EventRunFailed ||
				event.Type == events.EventRunCancelled {
				return
			}
		}
	}()

	final, err := run.Result().Wait(ctx)
	if err != nil {
		// The worker still finishes; give the terminal event a chance.
		final, _ = run.Peek(time.Second)
		if final == nil {
			return err
		}
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	printResult(final)

	if cfg.Session.Enabled && cfg.Session.ExportPath != "" {
		raw, err := store.ExportYAML()
		if err != nil {
			return err
		}
		if err := os.WriteFile(cfg.Session.ExportPath, raw, 0o644); err != nil {
			return err
		}
		logger.Info("session exported", "path", cfg.Session.ExportPath)
	}

	return nil
}

func printEvent(event events.Event) {
	switch event.Type {
	case events.EventStepStarted:
		fmt.Printf("[%03d] step %d: %s started\n", event.SequenceNumber, event.StepID, event.Capability)
	case events.EventStepSucceeded:
		line := fmt.Sprintf("[%03d] step %d: %s succeeded", event.SequenceNumber, event.StepID, event.Capability)
		if event.OutputPreview != "" {
			line += ": " + event.OutputPreview
		}
		fmt.Println(line)
	case events.EventStepFailed:
		fmt.Printf("[%03d] step %d: %s failed: %s\n", event.SequenceNumber, event.StepID, event.Capability, event.Error)
	default:
		fmt.Printf("[%03d] %s\n", event.SequenceNumber, event.Type)
	}
}

func printResult(final *engine.FinalResult) {
	fmt.Println()
	fmt.Printf("Status:  %s\n", final.Status)
	fmt.Printf("Message: %s\n", final.Message)
	if len(final.Artifacts) > 0 {
		fmt.Printf("Artifacts:\n  %s\n", strings.Join(final.Artifacts, "\n  "))
	}
}

func init() {
	runCmd.Flags().StringVar(&planFile, "plan", "", "Path to the YAML plan file (required)")
	_ = runCmd.MarkFlagRequired("plan")
}
