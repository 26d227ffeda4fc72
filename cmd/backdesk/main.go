package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/sirupsen/logrus"

	"github.com/backdesk/backdesk/internal/api"
	"github.com/backdesk/backdesk/internal/app"
	"github.com/backdesk/backdesk/internal/cache"
	"github.com/backdesk/backdesk/internal/credential"
	"github.com/backdesk/backdesk/internal/logging"
	"github.com/backdesk/backdesk/internal/model"
	"github.com/backdesk/backdesk/internal/notify"
	"github.com/backdesk/backdesk/internal/push"
	"github.com/backdesk/backdesk/internal/store"
	"github.com/backdesk/backdesk/internal/stream"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to the config file")
	dataDir := flag.String("data-dir", model.DefaultDataDir(), "directory for the local database and logs")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	switch flag.Arg(0) {
	case "login":
		exitOnError(runLogin())
		return
	case "logout":
		exitOnError(runLogout())
		return
	case "":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected login or logout)\n", flag.Arg(0))
		os.Exit(2)
	}

	cfg, err := model.LoadConfig(*configPath)
	exitOnError(err)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		exitOnError(fmt.Errorf("creating data directory: %w", err))
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger := logging.New(*dataDir, level)

	sqlStore, err := store.NewSQLiteStore(filepath.Join(*dataDir, "backdesk.db"))
	exitOnError(err)
	defer sqlStore.Close()

	sessionCache := cache.New()
	tokens := &api.KeyringTokenSource{
		RefreshURL: strings.TrimRight(cfg.Server.BaseURL, "/") + "/token/refresh/",
	}
	client := api.NewClient(cfg.Server.BaseURL, tokens, sessionCache, api.Options{
		Logger:         logger,
		PreferencesTTL: time.Duration(cfg.Cache.PreferencesTTLSec) * time.Second,
		VAPIDKeyTTL:    time.Duration(cfg.Cache.VAPIDKeyTTLSec) * time.Second,
	})

	notifStore := notify.NewStore(client, sqlStore, logger)
	prefs := notify.NewPrefs(client, sqlStore, logger)
	conn := stream.New(streamURL(cfg.Server.BaseURL, cfg.Server.StreamPath), tokens, stream.Options{
		Logger:     logger,
		MinBackoff: time.Duration(cfg.Stream.MinBackoffSec) * time.Second,
		MaxBackoff: time.Duration(cfg.Stream.MaxBackoffSec) * time.Second,
	})
	pushManager := push.NewManager(push.DefaultPlatform(), client, sqlStore, push.Options{
		DeviceName: cfg.Push.DeviceName,
		UserAgent:  "backdesk/" + version,
		Logger:     logger,
	})

	root := app.New(app.Deps{
		Store:      notifStore,
		Prefs:      prefs,
		Conn:       conn,
		Push:       pushManager,
		Logger:     logger,
		WebBaseURL: webBaseURL(cfg.Server.BaseURL),
	})

	program := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		conn.Close()
		exitOnError(err)
	}
	conn.Close()
}

// streamURL joins the stream path onto the API base with the scheme
// switched to ws/wss.
func streamURL(baseURL, streamPath string) string {
	base := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	if !strings.HasPrefix(streamPath, "/") {
		streamPath = "/" + streamPath
	}
	return base + streamPath
}

// webBaseURL strips the API suffix from the base URL so site-relative
// navigation urls resolve against the web application.
func webBaseURL(baseURL string) string {
	return strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/api")
}

// runLogin prompts for the API token pair and stores it in the system
// keyring.
func runLogin() error {
	var access, refresh string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Access token").
				EchoMode(huh.EchoModePassword).
				Value(&access),
			huh.NewInput().
				Title("Refresh token").
				Description("Optional; enables automatic session renewal.").
				EchoMode(huh.EchoModePassword).
				Value(&refresh),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if strings.TrimSpace(access) == "" {
		return errors.New("an access token is required")
	}
	if err := credential.Set(credential.KeyAccessToken, strings.TrimSpace(access)); err != nil {
		return err
	}
	if strings.TrimSpace(refresh) != "" {
		if err := credential.Set(credential.KeyRefreshToken, strings.TrimSpace(refresh)); err != nil {
			return err
		}
	}
	fmt.Println("Credentials stored.")
	return nil
}

// runLogout removes the stored token pair.
func runLogout() error {
	var firstErr error
	for _, key := range []string{credential.KeyAccessToken, credential.KeyRefreshToken} {
		if err := credential.Delete(key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	fmt.Println("Credentials removed.")
	return nil
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "backdesk:", err)
		os.Exit(1)
	}
}
