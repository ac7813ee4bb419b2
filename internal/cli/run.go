package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sketchpilot-dev/sketchpilot/internal/config"
	"github.com/sketchpilot-dev/sketchpilot/internal/metrics"
	"github.com/sketchpilot-dev/sketchpilot/internal/promptctx"
	"github.com/sketchpilot-dev/sketchpilot/internal/provider"
	"github.com/sketchpilot-dev/sketchpilot/internal/server"
	"github.com/sketchpilot-dev/sketchpilot/internal/session"
	"github.com/sketchpilot-dev/sketchpilot/internal/transport"
	"github.com/sketchpilot-dev/sketchpilot/pkg/canvas"
	"github.com/sketchpilot-dev/sketchpilot/pkg/wire"
)

// RunOptions holds configuration for the run command
type RunOptions struct {
	ActionsFile string
	RoomID      string
	Verbosity   int
}

// NewRunCmd creates the run command
func NewRunCmd() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run [message]",
		Short: "Run one local session from an NDJSON action stream",
		Long: `Run one session entirely in-process, replaying a newline-delimited JSON
action stream instead of calling a model API. A built-in client acknowledges
every envelope and answers screenshot requests, so the full dispatch protocol
is exercised.

Examples:
  sketchpilot run "draw a login flow" --actions actions.ndjson
  cat actions.ndjson | sketchpilot run "draw a login flow"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.ActionsFile, "actions", "-", "NDJSON action stream file, - for stdin")
	cmd.Flags().StringVar(&opts.RoomID, "room", "local", "Room id for the session")
	cmd.Flags().IntVarP(&opts.Verbosity, "verbosity", "v", 0, "Log verbosity level")

	return cmd
}

func runLocal(ctx context.Context, message string, opts *RunOptions) error {
	log := newLogger(opts.Verbosity)

	var in io.Reader = os.Stdin
	if opts.ActionsFile != "-" {
		f, err := os.Open(opts.ActionsFile)
		if err != nil {
			return fmt.Errorf("failed to open actions file: %w", err)
		}
		defer f.Close()
		in = f
	}

	cfg := config.DefaultConfig()
	cfg.Provider.Name = "ndjson"
	// The local client answers instantly; no point in long waits.
	cfg.Screenshot.WaitTimeout = 2 * time.Second

	providers := provider.NewRegistry()
	if err := providers.Register(&provider.NDJSONProvider{R: in}); err != nil {
		return err
	}

	hub := transport.NewHub()
	rooms := server.NewRoomRegistry()
	builder := promptctx.NewDefaultBuilder(rooms)
	runner := session.NewRunner(cfg, hub, providers, builder, rooms, nil, metrics.NewNop(), log)

	clientCtx, stopClient := context.WithCancel(ctx)
	defer stopClient()
	go localClient(clientCtx, hub, opts.RoomID)

	if err := runner.Run(ctx, opts.RoomID, message, session.Options{}); err != nil {
		return err
	}
	// Let the status frame reach the client before tearing down.
	time.Sleep(100 * time.Millisecond)
	return nil
}

// localClient plays the canvas client's half of the protocol: it prints every
// frame, acknowledges envelopes, and answers screenshot requests with an
// empty image.
func localClient(ctx context.Context, hub *transport.Hub, roomID string) {
	frames := hub.Subscribe(roomID)
	defer hub.Unsubscribe(roomID, frames)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			handleFrame(hub, frame)
		}
	}
}

func handleFrame(hub *transport.Hub, frame transport.Frame) {
	switch frame.Kind {
	case transport.KindEnvelope:
		var env wire.ActionEnvelope
		if err := json.Unmarshal(frame.Payload, &env); err != nil {
			return
		}
		color.Green("envelope seq=%d partial=%v actions=%d", env.Seq, env.Partial, len(env.Actions))
		for _, a := range env.Actions {
			fmt.Printf("  %s %s\n", color.HiWhiteString(string(a.Name)), a.ID)
		}
		hub.DeliverAck(wire.Ack{SessionID: env.SessionID, Seq: env.Seq, Hash: env.Hash})

	case transport.KindChat:
		var chat wire.ChatFrame
		if err := json.Unmarshal(frame.Payload, &chat); err != nil {
			return
		}
		color.Cyan("chat: %s", chat.Text)

	case transport.KindStatus:
		var st wire.StatusFrame
		if err := json.Unmarshal(frame.Payload, &st); err != nil {
			return
		}
		if st.Status == wire.StatusSuccess {
			color.Green("session %s: %s", st.SessionID, st.Status)
		} else {
			color.Red("session %s: %s %s", st.SessionID, st.Status, st.Message)
		}

	case transport.KindScreenshot:
		var req wire.ScreenshotRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			return
		}
		hub.DeliverScreenshot(&wire.ScreenshotResponse{
			SessionID: req.SessionID,
			RequestID: req.RequestID,
			Viewport:  canvas.Viewport{Bounds: canvas.Box{W: 1280, H: 800}, Zoom: 1},
		})
	}
}
