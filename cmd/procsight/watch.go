package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"procsight/internal/pkg/logger"
	"procsight/pkg/events"
	pktNats "procsight/pkg/nats"

	"github.com/spf13/cobra"
)

var (
	natsURL     string
	durableName string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow telemetry and session events relayed over NATS",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&natsURL, "nats", "nats://127.0.0.1:4222", "NATS server URL")
	watchCmd.Flags().StringVar(&durableName, "durable", "procsight-watch", "Durable consumer name prefix")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := pktNats.NewSubscriber(natsURL, logger.NewNopLogger())
	if err != nil {
		return err
	}
	defer sub.Close()

	out := cmd.OutOrStdout()
	handle := func(ctx context.Context, e events.Event) error {
		data := e.Payload()
		if e.EventType() == events.TypeSessionStatus {
			noticeColor.Fprintf(out, "session: %v %v\n", data["status"], data["detail"])
			return nil
		}
		printRule(out, fmt.Sprintf("%s (%v rows)", e.EventType(), data["rows"]))
		fmt.Fprintln(out, data["rolling_log"])
		return nil
	}

	types := []string{
		events.TypeTelemetryCapture,
		events.TypeTelemetryUpdate,
		events.TypeTelemetryExit,
		events.TypeSessionStatus,
	}
	for _, t := range types {
		cancel, err := sub.Subscribe(ctx, t, durableName+"-"+strings.ReplaceAll(t, ".", "-"), handle)
		if err != nil {
			return err
		}
		defer cancel()
	}

	<-ctx.Done()
	return nil
}
