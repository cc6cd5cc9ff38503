package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tinytelemetry/warden/internal/logsource"
	"github.com/tinytelemetry/warden/internal/tcpserver"
)

// InputSourcePlugin is a small plugin primitive for wiring record inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (logsource.LogSource, error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	TCPEnabled bool
	TCPAddr    string
	TCP        tcpserver.Config
	Kafka      logsource.KafkaConfig
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	return []InputSourcePlugin{
		tcpInputPlugin{addr: cfg.TCPAddr, conf: cfg.TCP, enabled: cfg.TCPEnabled},
		kafkaInputPlugin{conf: cfg.Kafka},
		stdinInputPlugin{},
	}
}

type tcpInputPlugin struct {
	addr    string
	conf    tcpserver.Config
	enabled bool
}

func (p tcpInputPlugin) Name() string { return tcpserver.SourceName }

func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Build(_ context.Context) (logsource.LogSource, error) {
	server := tcpserver.NewServer(p.addr, p.conf)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start tcp server: %w", err)
	}
	return logsource.NewTCPSource(server), nil
}

type kafkaInputPlugin struct {
	conf logsource.KafkaConfig
}

func (p kafkaInputPlugin) Name() string { return logsource.KafkaSourceName }

func (p kafkaInputPlugin) Enabled() bool {
	return len(p.conf.Brokers) > 0 && p.conf.Topic != ""
}

func (p kafkaInputPlugin) Build(ctx context.Context) (logsource.LogSource, error) {
	return logsource.NewKafkaSource(ctx, p.conf)
}

type stdinInputPlugin struct{}

func (p stdinInputPlugin) Name() string { return "stdin" }

// Enabled reports whether stdin is piped rather than a terminal.
func (p stdinInputPlugin) Enabled() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func (p stdinInputPlugin) Build(ctx context.Context) (logsource.LogSource, error) {
	return logsource.NewStdinSource(ctx), nil
}
