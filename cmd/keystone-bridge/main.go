// Command keystone-bridge exposes the console of a child process over a
// WebSocket. Each connection spawns its own child; stdout and stderr lines are
// sent as JSON frames and incoming messages are written to stdin.
//
//	keystone-bridge --addr :8080 -- keystone -m prompt
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync"

	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/errors"
	"github.com/PSthelyBlog/KeystoneAI-Framework-sub000/logger"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// Frame is one line of child output.
type Frame struct {
	Type string `json:"type"` // stdout, stderr or exit
	Data string `json:"data"`
}

type bridge struct {
	command  []string
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func main() {
	addr := pflag.String("addr", ":8080", "Address to listen on")
	path := pflag.String("path", "/ws", "WebSocket endpoint path")
	logLevel := pflag.String("log-level", "info", "Log level")
	pflag.Parse()

	logs, err := logger.New(logger.Config{Level: *logLevel, Console: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not configure logging: %v\n", err)
		os.Exit(1)
	}
	log := logs.Zerolog()

	if pflag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: keystone-bridge [flags] -- <command> [args...]")
		os.Exit(2)
	}

	b := newBridge(pflag.Args(), log)
	mux := http.NewServeMux()
	mux.HandleFunc(*path, b.handle)

	log.Info().Str("addr", *addr).Str("path", *path).Strs("command", pflag.Args()).Msg("WebSocket bridge listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal().Err(err).Msg("Bridge stopped")
	}
}

func newBridge(command []string, logger zerolog.Logger) *bridge {
	return &bridge{
		command: command,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (b *bridge) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Upgrade failed")
		return
	}
	defer conn.Close()

	log := b.logger.With().Str("remote", r.RemoteAddr).Logger()
	if err := b.relay(r.Context(), conn, log); err != nil {
		log.Error().Err(err).Msg("Relay ended with an error")
	}
}

// relay runs one child process for conn and pipes data both ways until either
// side goes away.
func (b *bridge) relay(ctx context.Context, conn *websocket.Conn, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.command[0], b.command[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrapf(err, "failed to open child stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrapf(err, "failed to open child stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrapf(err, "failed to open child stderr")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", b.command[0])
	}
	log.Info().Int("pid", cmd.Process.Pid).Msg("Child started")

	out := &frameWriter{conn: conn}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); out.pump("stdout", stdout, log) }()
	go func() { defer wg.Done(); out.pump("stderr", stderr, log) }()

	go func() {
		defer stdin.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Msg("WebSocket closed")
				cancel()
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Warn().Err(err).Msg("Writing to child stdin failed")
				return
			}
		}
	}()

	wg.Wait()
	err = cmd.Wait()
	status := "exited"
	if err != nil {
		status = err.Error()
	}
	out.send(Frame{Type: "exit", Data: status})
	log.Info().Str("status", status).Msg("Child finished")
	return nil
}

// frameWriter serializes writes to a connection; gorilla/websocket allows
// one concurrent writer.
type frameWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (f *frameWriter) send(frame Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn.WriteJSON(frame)
}

func (f *frameWriter) pump(stream string, r io.Reader, log zerolog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := f.send(Frame{Type: stream, Data: scanner.Text()}); err != nil {
			log.Debug().Err(err).Str("stream", stream).Msg("WebSocket write failed")
			_, _ = io.Copy(io.Discard, r)
			return
		}
	}
}
