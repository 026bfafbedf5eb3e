package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soapbox-pub/shakespeare-sub004/internal/events"
	"github.com/soapbox-pub/shakespeare-sub004/pkg/shakes"
)

func newReplayCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "replay <history.jsonl>",
		Short: "Replay a persisted session history through the Observer Bus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args[0], projectID)
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "replay", "project identifier to attach to replayed events")
	return cmd
}

func runReplay(cmd *cobra.Command, path, projectID string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	bus := events.New(nil)
	bus.On(func(ev events.Event) {
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", ev.Kind, describe(ev))
	})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg shakes.Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping malformed line: %v\n", err)
			continue
		}
		bus.Emit(events.Event{Kind: events.MessageAdded, ProjectID: projectID, Message: &msg})
	}
	return scanner.Err()
}

func describe(ev events.Event) string {
	if ev.Message == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", ev.Message.Role, ev.Message.Content)
}
