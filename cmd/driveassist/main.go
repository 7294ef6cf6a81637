package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/cadencehq/driveassist/internal/assist"
	"github.com/cadencehq/driveassist/internal/auditlog"
	"github.com/cadencehq/driveassist/internal/chat"
	"github.com/cadencehq/driveassist/internal/chatstore"
	"github.com/cadencehq/driveassist/internal/config"
	"github.com/cadencehq/driveassist/internal/drive"
	"github.com/cadencehq/driveassist/internal/lockfile"
	"github.com/cadencehq/driveassist/internal/monitor"
	"github.com/cadencehq/driveassist/internal/provider"
	"github.com/cadencehq/driveassist/internal/settings"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "init":
		initCmd(os.Args[2:])
	case "chat":
		chatCmd(os.Args[2:])
	case "secret":
		secretCmd(os.Args[2:])
	case "doctor":
		doctorCmd(os.Args[2:])
	case "version":
		fmt.Printf("driveassist %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `driveassist

Usage:
  driveassist init [flags]
  driveassist chat [flags]
  driveassist secret set|clear <provider-id> [flags]
  driveassist doctor [flags]
  driveassist version

Commands:
  init      Write a starter config file.
  chat      Start an interactive assistant session.
  secret    Manage provider API keys (kept outside the config file).
  doctor    Print config, database, and host health information.
  version   Print build information.

`)
}

func initCmd(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	path := filepath.Clean(*cfgPath)
	if !*force {
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(os.Stderr, "config already exists: %s (use -force to overwrite)\n", path)
			os.Exit(1)
		}
	}

	cfg := &config.Config{
		DBPath:    config.DefaultDBPath(),
		LogFormat: "text",
		LogLevel:  "info",
	}
	if err := config.Save(path, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written: %s\n", path)
}

func chatCmd(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	userID := fs.String("user", "local", "User id owning the chat threads")
	_ = fs.Parse(args)

	cfg := loadConfigOrDefault(*cfgPath)
	log, err := newLogger(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	sess, err := newSession(cfg, *userID, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init session: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown on SIGINT/SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "chat exited with error: %v\n", err)
		os.Exit(1)
	}
}

func secretCmd(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: driveassist secret set|clear <provider-id> [-config path]")
		os.Exit(2)
	}
	action, providerID := args[0], args[1]

	fs := flag.NewFlagSet("secret", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	_ = fs.Parse(args[2:])

	store := settings.NewSecretsStore(filepath.Join(filepath.Dir(filepath.Clean(*cfgPath)), "secrets.json"))

	switch action {
	case "set":
		key, err := readSecret(fmt.Sprintf("API key for %s: ", providerID))
		if err != nil {
			fmt.Fprintf(os.Stderr, "read key failed: %v\n", err)
			os.Exit(1)
		}
		if err := store.SetProviderAPIKey(providerID, key); err != nil {
			fmt.Fprintf(os.Stderr, "set failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Saved.")
	case "clear":
		if err := store.ClearProviderAPIKey(providerID); err != nil {
			fmt.Fprintf(os.Stderr, "clear failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Cleared.")
	default:
		fmt.Fprintf(os.Stderr, "unknown secret action %q\n", action)
		os.Exit(2)
	}
}

// readSecret hides input when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	r := bufio.NewReader(os.Stdin)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func doctorCmd(args []string) {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	_ = fs.Parse(args)

	type doctorReport struct {
		Version    string           `json:"version"`
		ConfigPath string           `json:"config_path"`
		ConfigOK   bool             `json:"config_ok"`
		ConfigErr  string           `json:"config_err,omitempty"`
		DBPath     string           `json:"db_path"`
		DBOK       bool             `json:"db_ok"`
		DBErr      string           `json:"db_err,omitempty"`
		Providers  []string         `json:"providers"`
		Host       monitor.Snapshot `json:"host"`
	}

	report := doctorReport{
		Version:    Version,
		ConfigPath: filepath.Clean(*cfgPath),
		Providers:  []string{},
	}

	cfg, err := config.Load(report.ConfigPath)
	if err != nil {
		report.ConfigErr = err.Error()
		cfg = &config.Config{}
	} else {
		report.ConfigOK = true
	}
	for _, p := range cfg.Providers {
		report.Providers = append(report.Providers, fmt.Sprintf("%s (%s)", p.ID, p.Type))
	}

	report.DBPath = strings.TrimSpace(cfg.DBPath)
	if report.DBPath == "" {
		report.DBPath = config.DefaultDBPath()
	}
	if store, err := chatstore.Open(report.DBPath); err != nil {
		report.DBErr = err.Error()
	} else {
		report.DBOK = true
		_ = store.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	report.Host = monitor.NewService(nil).Snapshot(ctx)

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "doctor failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// loadConfigOrDefault falls back to built-in defaults when no config file
// exists yet. Any other load error is fatal.
func loadConfigOrDefault(path string) *config.Config {
	cfg, err := config.Load(filepath.Clean(path))
	if err == nil {
		return cfg
	}
	if errors.Is(err, os.ErrNotExist) {
		return &config.Config{LogFormat: "text", LogLevel: "warn"}
	}
	fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
	os.Exit(1)
	return nil
}

func newLogger(format string, level string) (*slog.Logger, error) {
	var h slog.Handler

	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	return slog.New(h), nil
}

// session wires the chat store, the thread lifecycle, the streaming
// reconciler, the drive agent, and any configured chat providers into one
// interactive loop.
type session struct {
	cfg    *config.Config
	userID string
	log    *slog.Logger

	store   *chatstore.Store
	manager *chat.Manager
	agent   *assist.Agent
	audit   *auditlog.Store
	lock    *lockfile.Lock

	chatClient provider.Client
	chatModel  string

	transcript []chat.Turn
	prompt     string
}

func newSession(cfg *config.Config, userID string, log *slog.Logger) (*session, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("missing user id")
	}

	dbPath := strings.TrimSpace(cfg.DBPath)
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	stateDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, err
	}

	lock, err := lockfile.Acquire(dbPath + ".lock")
	if err != nil {
		if errors.Is(err, lockfile.ErrAlreadyLocked) {
			return nil, fmt.Errorf("another driveassist session is using %s", dbPath)
		}
		return nil, err
	}

	store, err := chatstore.Open(dbPath)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("open chat store: %w", err)
	}

	cleanup := func() {
		_ = store.Close()
		_ = lock.Release()
	}

	settle := time.Duration(cfg.Chat.SettleDelayMs) * time.Millisecond
	rec, err := chat.NewReconciler(store, settle, log)
	if err != nil {
		cleanup()
		return nil, err
	}
	manager, err := chat.NewManager(store, rec, len(cfg.Providers), log)
	if err != nil {
		cleanup()
		return nil, err
	}

	exec, err := drive.NewExecutor(drive.NewMemoryCapability(), log)
	if err != nil {
		cleanup()
		return nil, err
	}
	agent, err := assist.NewAgent(exec, assist.Options{
		MaxOperationsPerRequest: cfg.Agent.MaxOperationsPerRequest,
		TimeoutMs:               cfg.Agent.TimeoutMs,
		RetryAttempts:           cfg.Agent.RetryAttempts,
	}, log)
	if err != nil {
		cleanup()
		return nil, err
	}

	audit, err := auditlog.New(auditlog.Options{Logger: log, StateDir: stateDir})
	if err != nil {
		log.Warn("audit log unavailable", "error", err)
	}

	s := &session{
		cfg:     cfg,
		userID:  userID,
		log:     log,
		store:   store,
		manager: manager,
		agent:   agent,
		audit:   audit,
		lock:    lock,
		prompt:  "> ",
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		s.prompt = ""
	}

	// First configured provider with a usable model serves free-form chat.
	// Keys may live in the config or in the separate secrets file.
	secrets := settings.NewSecretsStore(filepath.Join(stateDir, "secrets.json"))
	for _, pc := range cfg.Providers {
		model := pc.DefaultModel()
		if model == "" {
			continue
		}
		if strings.TrimSpace(pc.APIKey) == "" {
			if key, ok, err := secrets.GetProviderAPIKey(pc.ID); err == nil && ok {
				pc.APIKey = key
			}
		}
		client, err := provider.New(pc)
		if err != nil {
			log.Warn("provider unavailable", "provider", pc.ID, "error", err)
			continue
		}
		s.chatClient = client
		s.chatModel = model
		break
	}

	return s, nil
}

func (s *session) Close() {
	if s == nil {
		return
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.lock != nil {
		_ = s.lock.Release()
	}
}

func (s *session) Run(ctx context.Context) error {
	th, err := s.manager.EnsureActive(ctx, s.userID)
	if err != nil && !errors.Is(err, chat.ErrNoProviders) {
		return err
	}
	s.transcript = s.manager.Messages()
	if th.ThreadID != "" {
		fmt.Printf("Thread %s (%d messages). Type /help for commands.\n", th.ThreadID, len(s.transcript))
	} else {
		fmt.Println("No providers configured; add one to the config to start a conversation.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Print(s.prompt)
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			done, err := s.runCommand(ctx, line)
			if err != nil {
				fmt.Printf("error: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}
		if !s.manager.InputEnabled() {
			fmt.Println("(thread still loading, try again)")
			continue
		}
		s.handleUtterance(ctx, line)
	}
}

func (s *session) runCommand(ctx context.Context, line string) (done bool, err error) {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/help":
		fmt.Println("/threads  /new [title]  /switch <id>  /rename <title>  /delete <id>  /history  /audit  /quit")
	case "/quit", "/exit":
		return true, nil
	case "/threads":
		threads, err := s.store.ListThreads(ctx, s.userID)
		if err != nil {
			return false, err
		}
		active, _ := s.manager.Active()
		for _, th := range threads {
			marker := " "
			if th.ThreadID == active {
				marker = "*"
			}
			title := th.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s %s  %-40s %d messages\n", marker, th.ThreadID, title, th.MessageCount)
		}
	case "/new":
		th, err := s.manager.CreateThread(ctx, s.userID, rest)
		if err != nil {
			return false, err
		}
		s.transcript = s.manager.Messages()
		fmt.Printf("Switched to new thread %s.\n", th.ThreadID)
	case "/switch":
		if rest == "" {
			return false, errors.New("usage: /switch <thread-id>")
		}
		if err := s.manager.SwitchTo(ctx, rest); err != nil {
			return false, err
		}
		s.transcript = s.manager.Messages()
		fmt.Printf("Switched to %s (%d messages).\n", rest, len(s.transcript))
	case "/rename":
		if rest == "" {
			return false, errors.New("usage: /rename <title>")
		}
		active, ok := s.manager.Active()
		if !ok {
			return false, errors.New("no active thread")
		}
		if err := s.store.UpdateThreadTitle(ctx, active, rest); err != nil {
			return false, err
		}
		fmt.Println("Renamed.")
	case "/delete":
		if rest == "" {
			return false, errors.New("usage: /delete <thread-id>")
		}
		if err := s.manager.DeleteThread(ctx, rest); err != nil {
			return false, err
		}
		fmt.Printf("Deleted %s.\n", rest)
	case "/history":
		for _, t := range s.manager.Messages() {
			fmt.Printf("[%s] %s\n", string(t.Role), t.Content)
		}
	case "/audit":
		entries, err := s.audit.List(20)
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			fmt.Printf("%s  %-16s %-8s %s\n", e.CreatedAt, e.Operation, e.Status, e.Error)
		}
	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
	return false, nil
}

// handleUtterance runs one conversational turn. Drive requests are answered
// by the deterministic agent; anything it routes to the low-confidence
// search fallback is handed to the configured chat provider when one exists.
func (s *session) handleUtterance(ctx context.Context, line string) {
	active, ok := s.manager.Active()
	if !ok {
		fmt.Println("(no active thread)")
		return
	}

	userTurn := chat.Turn{
		ThreadID: active,
		UserID:   s.userID,
		Role:     chat.RoleUser,
		Content:  line,
	}
	s.transcript = append(s.transcript, userTurn)
	s.manager.Observe(ctx, s.transcript, false)

	resp := s.agent.Process(ctx, assist.Request{
		UserID:    s.userID,
		Utterance: line,
	})
	for _, op := range resp.Operations {
		status := "success"
		if op.Status != drive.StatusSuccess {
			status = "failure"
		}
		s.audit.Append(auditlog.Entry{
			UserID:     s.userID,
			ThreadID:   active,
			Utterance:  line,
			Operation:  string(op.Kind),
			Status:     status,
			Error:      op.Error,
			Parameters: op.Parameters,
		})
	}

	// Clarifying turns stay with the agent: the follow-up question is the
	// reply. Only the unrecognized-utterance fallback goes to the provider.
	reply := resp.Message
	if s.chatClient != nil && resp.Status == assist.StatusPartial && !resp.Clarifying && len(resp.Operations) == 0 {
		if streamed, err := s.streamChatReply(ctx, active); err == nil && streamed != "" {
			reply = streamed
		} else if err != nil {
			s.log.Warn("provider chat failed", "error", err)
		}
	}
	if strings.TrimSpace(reply) == "" {
		return
	}

	if reply == resp.Message {
		// Streamed replies were already printed delta by delta.
		fmt.Println(reply)
	}
	for _, sg := range resp.Suggestions {
		fmt.Printf("  - %s\n", sg)
	}

	s.transcript = append(s.transcript, chat.Turn{
		ThreadID: active,
		UserID:   s.userID,
		Role:     chat.RoleAssistant,
		Content:  reply,
	})
	s.manager.Observe(ctx, s.transcript, false)
}

// streamChatReply feeds partial transcript snapshots into the lifecycle
// manager while the provider streams, so persistence waits for the reply to
// settle instead of saving fragments.
func (s *session) streamChatReply(ctx context.Context, threadID string) (string, error) {
	messages := make([]provider.Message, 0, len(s.transcript)+1)
	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: "You are a helpful assistant for a Google Drive workspace. Be concise.",
	})
	for _, t := range s.transcript {
		switch t.Role {
		case chat.RoleUser:
			messages = append(messages, provider.Message{Role: provider.RoleUser, Content: t.Content})
		case chat.RoleAssistant:
			messages = append(messages, provider.Message{Role: provider.RoleAssistant, Content: t.Content})
		}
	}

	var partial strings.Builder
	full, err := s.chatClient.StreamChat(ctx, provider.ChatRequest{
		Model:    s.chatModel,
		Messages: messages,
	}, func(delta string) {
		fmt.Print(delta)
		partial.WriteString(delta)
		snapshot := append(append([]chat.Turn{}, s.transcript...), chat.Turn{
			ThreadID: threadID,
			UserID:   s.userID,
			Role:     chat.RoleAssistant,
			Content:  partial.String(),
		})
		s.manager.Observe(ctx, snapshot, true)
	})
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(full), nil
}
