package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func printStartupBanner(cfg appConfig, sources []string) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╦ ╦╔═╗╦═╗╔╦╗╔═╗╔╗╔
    ║║║╠═╣╠╦╝ ║║║╣ ║║║
    ╚╩╝╩ ╩╩╚══╩╝╚═╝╝╚╝`)

	row := func(on bool, label, value string) string {
		mark := dot
		if on {
			mark = check
		}
		return fmt.Sprintf("    %s  %-14s %s", mark, label, value)
	}
	enabled := func(on bool, value string) string {
		if on {
			return cyan.Render(value)
		}
		return dim.Render("disabled")
	}
	has := func(name string) bool {
		for _, s := range sources {
			if s == name {
				return true
			}
		}
		return false
	}

	separator := dim.Render("    ─────────────────────────────────")
	lines := []string{"", logo, "    " + dim.Render("v"+version), "", separator, ""}

	lines = append(lines, bold.Render("    Gateway"), "")
	lines = append(lines, row(cfg.APIEnabled, "HTTP API", enabled(cfg.APIEnabled, cfg.APIAddr)))
	lines = append(lines, row(has("tcp"), "TCP Ingest", enabled(has("tcp"), cfg.TCPAddr)))
	lines = append(lines, row(has("kafka"), "Kafka", enabled(has("kafka"), cfg.KafkaTopic+" @ "+strings.Join(cfg.KafkaBrokers, ","))))
	lines = append(lines, row(true, "Unix Socket", cyan.Render(shortenPath(cfg.SocketPath))))
	authLabel := "open (no auth-token)"
	if cfg.AuthToken != "" {
		authLabel = "bearer token"
	}
	lines = append(lines, row(cfg.AuthToken != "", "Auth", dim.Render(authLabel)), "")

	lines = append(lines, bold.Render("    Storage"), "")
	lines = append(lines, row(true, "Storage", dim.Render(shortenPath(cfg.DBPath))))
	lines = append(lines, row(cfg.BackupEnabled, "Backups", enabled(cfg.BackupEnabled, shortenPath(cfg.BackupDir))))
	retention := "forever"
	if cfg.LogRetention > 0 {
		retention = fmt.Sprintf("%d days", cfg.LogRetention)
	}
	lines = append(lines, row(cfg.LogRetention > 0, "Retention", dim.Render(retention)), "")

	lines = append(lines, bold.Render("    Runtime"), "")
	lines = append(lines, row(true, "Refresh", dim.Render(cfg.RefreshInterval.String())))
	lines = append(lines, row(cfg.GeoIPDB != "", "GeoIP", enabled(cfg.GeoIPDB != "", shortenPath(cfg.GeoIPDB))))
	if cfg.ConfigPath != "" {
		lines = append(lines, row(true, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, row(false, "Config File", dim.Render("default (no file)")))
	}
	lines = append(lines, row(true, "Log File", dim.Render(shortenPath(cfg.LogFile))))

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
