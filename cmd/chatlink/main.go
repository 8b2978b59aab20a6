// chatlink opens the realtime channel of a chat session and streams its events
// to the console. Lines typed on stdin are sent as chat messages.
//
// Usage: go run ./cmd/chatlink --config configs/chatlink.yaml [--session ID] [--upload data.csv]
//
// Commands:
//
//	/state     request a session snapshot and wait for it
//	/sessions  list sessions over REST
//	/stats     print channel statistics
//	/quit      disconnect and exit
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sadnxai/chatlink/internal/api"
	"github.com/sadnxai/chatlink/internal/config"
	"github.com/sadnxai/chatlink/internal/connection"
	"github.com/sadnxai/chatlink/internal/metrics"
	"github.com/sadnxai/chatlink/internal/protocol"
	"github.com/sadnxai/chatlink/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults when empty)")
	sessionID := flag.String("session", "", "session to join (a new one is created when empty)")
	uploadPath := flag.String("upload", "", "CSV file to upload before connecting")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	logger.Info("starting chatlink", version.LogAttrs()...)

	if err := run(cfg, logger, *sessionID, *uploadPath, *verbose); err != nil {
		logger.Error("chatlink failed", "error", err)
		os.Exit(1)
	}
	logger.Info("chatlink stopped")
}

func run(cfg *config.Config, logger *slog.Logger, sessionID, uploadPath string, verbose bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		var err error
		collector, err = metrics.New(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		g.Go(func() error {
			return serveMetrics(ctx, cfg.Metrics, logger)
		})
	}

	apiClient := api.NewClient(cfg.API.RestURL, cfg.API.ClientOptions(logger)...)

	if sessionID == "" {
		id, err := apiClient.CreateSession(ctx)
		if err != nil {
			return err
		}
		sessionID = id
		logger.Info("session created", "session_id", sessionID)
	}

	if uploadPath != "" {
		if err := upload(ctx, apiClient, sessionID, uploadPath); err != nil {
			return err
		}
	}

	mgr := connection.NewManager(cfg.Channel.ManagerConfig(cfg.API.WSURL, collector), logger)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start channel manager: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		mgr.Stop(shutdownCtx)
	}()

	subs := []connection.Subscription{
		connection.HandleAny(printer(verbose)),
		connection.HandleState(func(open bool) {
			if open {
				fmt.Println("[channel open]")
			} else {
				fmt.Println("[channel closed, reconnecting]")
			}
		}),
	}
	if err := mgr.Connect(ctx, sessionID, subs...); err != nil {
		return fmt.Errorf("connect session %s: %w", sessionID, err)
	}
	fmt.Printf("joined session %s - type a message, /quit to exit\n", sessionID)

	lines := make(chan string)
	go readLines(lines)

	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				quit, err := command(ctx, mgr, apiClient, cfg.Channel.RequestTimeout, line)
				if err != nil {
					fmt.Printf("[error] %v\n", err)
				}
				if quit {
					mgr.Disconnect()
					return nil
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// command executes one console line and reports whether to exit.
func command(ctx context.Context, mgr connection.Manager, apiClient *api.Client, timeout time.Duration, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false, nil

	case "/quit":
		return true, nil

	case "/state":
		reply, err := mgr.SendAndWait(ctx, protocol.GetSession(), timeout)
		if err != nil {
			return false, err
		}
		sess, err := reply.Session()
		if err != nil {
			return false, err
		}
		fmt.Printf("[state] %s %q status=%s rows=%d messages=%d\n",
			sess.ID, sess.Title, sess.Status, sess.RowCount, len(sess.Messages))
		return false, nil

	case "/sessions":
		sessions, err := apiClient.ListSessions(ctx, 0, 0)
		if err != nil {
			return false, err
		}
		for _, s := range sessions {
			fmt.Printf("[session] %s %q status=%s updated=%s\n", s.ID, s.Title, s.Status, s.UpdatedAt)
		}
		return false, nil

	case "/stats":
		st := mgr.Stats()
		fmt.Printf("[stats] connected=%v queued=%d pending=%d subscribers=%d reconnect_attempts=%d\n",
			st.Connected, st.QueuedMessages, st.PendingRequests, st.Subscribers, st.ReconnectAttempts)
		fmt.Printf("[stats] outbound sent=%d capacity=%d resizes=%d\n",
			st.Outbound.TotalSent, st.Outbound.Capacity, st.Outbound.ResizeCount)
		return false, nil
	}

	_, err := mgr.SendChat(line)
	return false, err
}

func readLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// printer renders inbound events for the console. Tokens stream inline.
func printer(verbose bool) connection.Handler {
	return func(msg protocol.InboundMessage) {
		if verbose {
			data, _ := json.Marshal(msg)
			fmt.Printf("[%s] %s\n", msg.Type, data)
			return
		}

		switch msg.Type {
		case protocol.EventToken:
			var p protocol.TokenPayload
			if msg.DecodePayload(&p) == nil {
				fmt.Print(p.Content)
			}
		case protocol.EventMessage:
			fmt.Println()
		case protocol.EventThinking:
			fmt.Print("assistant> ")
		case protocol.EventToolStart:
			var p protocol.ToolStartPayload
			msg.DecodePayload(&p)
			fmt.Printf("[tool] %s\n", p.Tool)
		case protocol.EventPipelineProgress:
			var p protocol.PipelineProgressPayload
			msg.DecodePayload(&p)
			fmt.Printf("[pipeline] %s: %s\n", p.Stage, p.Message)
		case protocol.EventDone:
			var p protocol.DonePayload
			msg.DecodePayload(&p)
			fmt.Printf("[done] status=%s\n", p.Status)
		case protocol.EventError:
			var p protocol.ErrorPayload
			msg.DecodePayload(&p)
			fmt.Printf("[server error] %s\n", p.Message)
		case protocol.EventSession:
			if sess, err := msg.Session(); err == nil {
				fmt.Printf("[session] %q status=%s\n", sess.Title, sess.Status)
			}
		}
	}
}

func upload(ctx context.Context, apiClient *api.Client, sessionID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	resp, err := apiClient.UploadFile(ctx, sessionID, path, f, func(ev api.StreamEvent) {
		switch ev.Type {
		case api.StreamFileInfo:
			fmt.Printf("[upload] %s: %d rows, columns %s\n", ev.Filename, ev.RowCount, strings.Join(ev.Columns, ", "))
		case api.StreamMessage, api.StreamTextDelta:
			fmt.Print(ev.Content)
		case api.StreamDone:
			fmt.Println()
		}
	})
	if err != nil {
		return err
	}
	slog.Default().Info("file uploaded", "session_id", sessionID, "rows", resp.RowCount)
	return nil
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting metrics server", "port", cfg.Port, "path", cfg.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
