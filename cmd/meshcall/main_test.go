package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/opd-ai/meshcall/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCLIFlags(t *testing.T) {
	var out bytes.Buffer
	cli, _, err := parseCLIFlags([]string{
		"-addr", "127.0.0.1:9000",
		"-log-level", "DEBUG",
		"-nodes", "did:key:a, did:key:b,,",
		"-shutdown-timeout", "2s",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cli.addr)
	assert.Equal(t, "DEBUG", cli.logLevel)
	assert.Equal(t, 2*time.Second, cli.shutdownTimeout)
	assert.Equal(t, []string{"did:key:a", "did:key:b"}, seedNodes(cli.nodes))

	_, _, err = parseCLIFlags([]string{"-bogus"}, &out)
	assert.Error(t, err)
}

func TestApplyCLIConfig(t *testing.T) {
	tests := []struct {
		name    string
		cli     CLIConfig
		wantErr bool
		check   func(t *testing.T, cfg config.Config)
	}{
		{
			name: "flags override environment",
			cli:  CLIConfig{addr: ":9999", logLevel: "WARN", logFormat: "json", shutdownTimeout: time.Second},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, ":9999", cfg.HTTPAddr)
				assert.Equal(t, "warn", cfg.LogLevel)
				assert.Equal(t, "json", cfg.LogFormat)
			},
		},
		{
			name: "empty flags keep defaults",
			cli:  CLIConfig{shutdownTimeout: time.Second},
			check: func(t *testing.T, cfg config.Config) {
				assert.Equal(t, ":8080", cfg.HTTPAddr)
				assert.Equal(t, "info", cfg.LogLevel)
			},
		},
		{name: "bad level", cli: CLIConfig{logLevel: "loud", shutdownTimeout: time.Second}, wantErr: true},
		{name: "bad format", cli: CLIConfig{logFormat: "xml", shutdownTimeout: time.Second}, wantErr: true},
		{name: "zero shutdown timeout", cli: CLIConfig{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := tt.cli
			cfg, err := applyCLIConfig(config.Default(), &cli)
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalid)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestPrintUsage(t *testing.T) {
	var out bytes.Buffer
	_, fs, err := parseCLIFlags(nil, &out)
	require.NoError(t, err)
	printUsage(&out, fs)
	assert.Contains(t, out.String(), "-shutdown-timeout")
	assert.Contains(t, out.String(), "-nodes")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.HTTPAddr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, cfg, &CLIConfig{nodes: "did:key:a", shutdownTimeout: time.Second})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRunRejectsDuplicateSeeds(t *testing.T) {
	cfg := config.Default()
	cfg.HTTPAddr = "127.0.0.1:0"
	err := run(context.Background(), cfg, &CLIConfig{nodes: "did:key:a,did:key:a", shutdownTimeout: time.Second})
	assert.Error(t, err)
}
