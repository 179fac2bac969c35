// Package main implements an interactive ISO-TP demo shell.
//
// It runs a diagnostic-style request/response pair over a shared stack: a
// client link sending on 0x7E0, a server link answering on 0x7E8 with the
// first byte incremented by 0x40, and a passive monitor listening on the
// request identifier to show fan-out delivery.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/desertbit/grumble"
	"github.com/jedib0t/go-pretty/table"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/notnil/isotp"
)

const banner = `
  _           _                      _
 (_)___  ___ | |_ _ __        _ __  | |__
 | / __|/ _ \| __| '_ \ _____| '_ \ | '_ \
 | \__ \ (_) | |_| |_) |_____| |_) || |_) |
 |_|___/\___/ \__| .__/      | .__/ |_.__/
                 |_|         |_|

   ISO-TP demo shell (v1.0)
   -------------------------

`

// Diagnostic-style identifier pair used by the demo session.
const (
	requestID  = 0x7E0
	responseID = 0x7E8
)

// Global state shared by the shell commands.
var (
	cfg     isotp.Config
	stack   *isotp.Stack
	session *demoSession
	mu      sync.Mutex
)

// demoSession holds the three links of a running demo plus its background
// responder and monitor goroutines.
type demoSession struct {
	client  *isotp.Link
	server  *isotp.Link
	monitor *isotp.Link
	wg      sync.WaitGroup
}

// startSession creates the links and launches the responder and monitor
// loops.
func startSession() (*demoSession, error) {
	client, err := stack.NewLink(requestID, responseID)
	if err != nil {
		return nil, err
	}
	server, err := stack.NewLink(responseID, requestID, isotp.WithRecvBuffer(make([]byte, 4095)))
	if err != nil {
		client.Close()
		return nil, err
	}
	monitor, err := stack.NewLink(requestID, requestID)
	if err != nil {
		client.Close()
		server.Close()
		return nil, err
	}
	s := &demoSession{client: client, server: server, monitor: monitor}
	s.wg.Add(2)
	go s.respond()
	go s.observe()
	return s, nil
}

func (s *demoSession) stop() {
	s.client.Close()
	s.server.Close()
	s.monitor.Close()
	s.wg.Wait()
}

// respond answers each request with the same payload, first byte
// incremented by 0x40 in the style of a UDS positive response.
func (s *demoSession) respond() {
	defer s.wg.Done()
	buf := make([]byte, 4095)
	for {
		n, err := s.server.Receive(buf, time.Second)
		switch {
		case err == nil || errors.Is(err, isotp.ErrTruncated):
		case errors.Is(err, isotp.ErrTimeout):
			continue
		default:
			return
		}
		resp := make([]byte, n)
		copy(resp, buf[:n])
		resp[0] += 0x40
		if err := s.server.Send(resp, 2*time.Second); err != nil {
			log.Warn().Err(err).Msg("responder failed to send reply")
		}
	}
}

// observe consumes the monitor link, demonstrating that a second listener
// on the request identifier receives its own copy of every message.
func (s *demoSession) observe() {
	defer s.wg.Done()
	buf := make([]byte, 4095)
	for {
		n, err := s.monitor.Receive(buf, time.Second)
		switch {
		case err == nil || errors.Is(err, isotp.ErrTruncated):
			log.Info().Int("size", n).Msg("monitor observed request")
		case errors.Is(err, isotp.ErrTimeout):
			continue
		default:
			return
		}
	}
}

// renderLinkTable formats the demo links for the shell.
func renderLinkTable(s *demoSession) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Role", "Tag", "Send ID", "Recv ID"})
	rows := []struct {
		role string
		link *isotp.Link
	}{
		{"client", s.client},
		{"server", s.server},
		{"monitor", s.monitor},
	}
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.role,
			r.link.Tag(),
			fmt.Sprintf("0x%03X", r.link.SendID()),
			fmt.Sprintf("0x%03X", r.link.RecvID()),
		})
	}
	return t.Render()
}

// addCommands registers all shell commands.
func addCommands(app *grumble.App) {
	app.AddCommand(&grumble.Command{
		Name: "start",
		Help: "start the demo session (client, server and monitor links)",
		Run: func(c *grumble.Context) error {
			mu.Lock()
			defer mu.Unlock()
			if session != nil {
				log.Warn().Msg("Session already running")
				return nil
			}
			s, err := startSession()
			if err != nil {
				log.Error().Err(err).Msg("Failed to start session")
				return nil
			}
			session = s
			log.Info().Msg("Session started")
			return nil
		},
	})
	app.AddCommand(&grumble.Command{
		Name: "stop",
		Help: "stop the demo session and close its links",
		Run: func(c *grumble.Context) error {
			mu.Lock()
			defer mu.Unlock()
			if session == nil {
				log.Warn().Msg("No session running")
				return nil
			}
			session.stop()
			session = nil
			log.Info().Msg("Session stopped")
			return nil
		},
	})
	app.AddCommand(&grumble.Command{
		Name: "send",
		Help: "send a request payload (hex) and print the response",
		Args: func(a *grumble.Args) {
			a.String("payload", "request payload as hex, e.g. 2201AB")
		},
		Flags: func(f *grumble.Flags) {
			f.Duration("t", "timeout", 2*time.Second, "per-operation timeout")
		},
		Run: func(c *grumble.Context) error {
			mu.Lock()
			defer mu.Unlock()
			if session == nil {
				log.Warn().Msg("No session running. Use 'start' first")
				return nil
			}
			raw := strings.ReplaceAll(c.Args.String("payload"), " ", "")
			payload, err := hex.DecodeString(raw)
			if err != nil || len(payload) == 0 {
				log.Error().Msg("Payload must be non-empty hex")
				return nil
			}
			timeout := c.Flags.Duration("timeout")

			if err := session.client.Send(payload, timeout); err != nil {
				log.Error().Err(err).Msg("Send failed")
				return nil
			}
			buf := make([]byte, 4095)
			n, err := session.client.Receive(buf, timeout)
			if err != nil && !errors.Is(err, isotp.ErrTruncated) {
				log.Error().Err(err).Msg("No response")
				return nil
			}
			log.Info().
				Int("size", n).
				Str("data", strings.ToUpper(hex.EncodeToString(buf[:n]))).
				Msg("Response received")
			return nil
		},
	})
	app.AddCommand(&grumble.Command{
		Name:    "links",
		Aliases: []string{"ls"},
		Help:    "list the demo links",
		Run: func(c *grumble.Context) error {
			mu.Lock()
			defer mu.Unlock()
			if session == nil {
				log.Warn().Msg("No session running")
				return nil
			}
			c.App.Println(renderLinkTable(session))
			return nil
		},
	})
	app.AddCommand(&grumble.Command{
		Name: "stats",
		Help: "show stack counters",
		Run: func(c *grumble.Context) error {
			st := stack.Stats()
			log.Info().
				Int("links", st.Links).
				Uint64("dropped_frames", st.DroppedFrames).
				Msg("Stack statistics")
			return nil
		},
	})
}

// configureLogging sets up zerolog with a console writer and optional
// rotated file output.
func configureLogging(logFile string, debug bool) zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05",
	}
	if logFile != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
		})
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// setupCLI initializes the shell.
func setupCLI() *grumble.App {
	var histFile string
	home, err := os.UserHomeDir()
	if err != nil {
		histFile = ".isotp-demo"
	} else {
		histFile = filepath.Join(home, ".isotp-demo")
	}

	app := grumble.New(&grumble.Config{
		Name:        "isotp-demo",
		HistoryFile: histFile,
		Flags: func(f *grumble.Flags) {
			f.String("c", "config", "isotp.yaml", "path to configuration file")
			f.String("i", "interface", "", "SocketCAN interface; empty for loopback")
			f.String("l", "log-file", "", "also log to this file with rotation")
			f.Bool("d", "debug", false, "enable debug logging")
		},
	})

	app.SetPrintASCIILogo(func(a *grumble.App) {
		fmt.Print(banner)
	})

	app.OnInit(func(a *grumble.App, flags grumble.FlagMap) error {
		logger := configureLogging(flags.String("log-file"), flags.Bool("debug"))

		var err error
		cfg, err = isotp.LoadConfig(flags.String("config"))
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		bus, err := openBus(flags.String("interface"))
		if err != nil {
			return fmt.Errorf("failed to open bus: %v", err)
		}

		stack, err = isotp.NewStack(bus, cfg, isotp.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to start stack: %v", err)
		}
		return nil
	})

	return app
}

func main() {
	app := setupCLI()
	addCommands(app)
	err := app.Run()

	mu.Lock()
	if session != nil {
		session.stop()
		session = nil
	}
	if stack != nil {
		stack.Close()
		stack = nil
	}
	mu.Unlock()

	if err != nil {
		log.Fatal().Msg(err.Error())
	}
}
