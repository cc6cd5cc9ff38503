package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/tinytelemetry/warden/internal/fetch"
	"github.com/tinytelemetry/warden/internal/logging"
	"github.com/tinytelemetry/warden/internal/model"
	"github.com/tinytelemetry/warden/internal/session"
	"github.com/tinytelemetry/warden/internal/socketrpc"
	"github.com/tinytelemetry/warden/internal/tui"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var socketPath string
	var user string
	var pageSize int
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/warden/config.yml)")
	flag.StringVar(&socketPath, "socket", "", "override socket path to connect to the warden service")
	flag.StringVar(&user, "user", "", "sign in as this user on start (token from WARDEN_AUTH_TOKEN)")
	flag.IntVar(&pageSize, "page-size", -1, "rows per page (0 fits the terminal)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("Warden TUI - Decision Log Dashboard\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if socketPath != "" {
		cfg.SocketPath = socketPath
	}
	if user != "" {
		cfg.User = user
	}
	if pageSize >= 0 {
		cfg.PageSize = pageSize
	}

	if err := runTUI(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cfg cliConfig) error {
	// The terminal belongs to the UI; logs only go to the file.
	_, cleanupLogger := logging.Setup(logging.Options{Path: cfg.LogFile, Level: cfg.LogLevel})
	defer cleanupLogger()

	client, err := socketrpc.Dial(cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("cannot connect to warden service at %s: %w\nIs the warden service running? Start it with: warden serve", cfg.SocketPath, err)
	}
	defer client.Close()

	sess := session.NewProvider("")
	logSessionChanges(sess, zap.S())
	coord := fetch.NewCoordinator(fetch.Config{
		Store:   client,
		Session: sess,
		Logger:  zap.S(),
	})

	dashboard := tui.NewDashboardModel(tui.Config{
		Loader:          coord,
		Session:         sess,
		RefreshInterval: cfg.RefreshInterval,
		PageSize:        cfg.PageSize,
		LoadTimeout:     cfg.LoadTimeout,
		DataSource:      "socket",
	})
	dashPage := tui.NewDashboardPage(dashboard)
	signIn := tui.NewSignInPage(client.Authenticate, sess)

	pages := []tui.Page{signIn, dashPage}
	if cfg.User != "" {
		if err := signInOnStart(client, sess, cfg); err != nil {
			zap.S().Warnf("tui: sign-in on start failed: %v", err)
		} else {
			pages = []tui.Page{dashPage, signIn}
		}
	}
	sess.Resolve()

	app := tui.NewApp(pages...)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// logSessionChanges records every session transition in the log file.
func logSessionChanges(sess *session.Provider, logger *zap.SugaredLogger) {
	sess.OnChange(func(state session.State) {
		if u := sess.CurrentUser(); u != nil && state == session.StateAuthenticated {
			logger.Infof("tui: session %s as %s", state, u.ID)
			return
		}
		logger.Infof("tui: session %s", state)
	})
}

func signInOnStart(client *socketrpc.Client, sess *session.Provider, cfg cliConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.LoadTimeout)
	defer cancel()
	u, err := client.Authenticate(ctx, model.User{ID: cfg.User, Name: cfg.User}, cfg.AuthToken)
	if err != nil {
		return err
	}
	return sess.SignIn(u, "")
}
