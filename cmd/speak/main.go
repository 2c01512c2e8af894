package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/ariavoice/streamkit/internal/fallback"
	"github.com/ariavoice/streamkit/internal/playback"
	"github.com/ariavoice/streamkit/internal/protocol"
	"github.com/ariavoice/streamkit/internal/session"
	"github.com/ariavoice/streamkit/internal/shared"
	"github.com/ariavoice/streamkit/internal/speaker"
	"github.com/ariavoice/streamkit/internal/transport"
)

type settings struct {
	Server     string `mapstructure:"server"`
	Mode       string `mapstructure:"mode"`
	Text       string `mapstructure:"text"`
	Voice      string `mapstructure:"voice"`
	Model      string `mapstructure:"model"`
	Format     string `mapstructure:"format"`
	SampleRate int    `mapstructure:"sample_rate"`
	APIKey     string `mapstructure:"api_key"`
	TimeoutSec int    `mapstructure:"timeout_seconds"`
}

func loadSettings() (*settings, error) {
	viper.SetDefault("server", "http://localhost:8080")
	viper.SetDefault("mode", "duplex")
	viper.SetDefault("voice", "aria")
	viper.SetDefault("format", "pcm_s16le")
	viper.SetDefault("sample_rate", 24000)
	viper.SetDefault("timeout_seconds", 60)

	viper.SetEnvPrefix("speak")
	viper.AutomaticEnv()

	viper.SetConfigName("speak")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var s settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &s, nil
}

func sessionURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/v1/tts/session"
	return u.String(), nil
}

func main() {
	cfg, err := loadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	text := cfg.Text
	if len(os.Args) > 1 {
		text = strings.Join(os.Args[1:], " ")
	}
	if text == "" {
		fmt.Fprintln(os.Stderr, "usage: speak <text> (or set SPEAK_TEXT)")
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	wsURL, err := sessionURL(cfg.Server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid server url: %v\n", err)
		os.Exit(1)
	}

	sink, err := speaker.NewSink(cfg.SampleRate, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audio device: %v\n", err)
		os.Exit(1)
	}

	buf := playback.NewBuffer(log)
	buf.Bind(sink)
	buf.SetErrorCallback(func(e *shared.SessionError) {
		fmt.Fprintf(os.Stderr, "playback: %s\n", e.Message)
	})

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("X-API-Key", cfg.APIKey)
	}

	sc := session.New(session.Config{
		URL:    wsURL,
		Header: header,
		Logger: log,
	})
	fc := fallback.New(fallback.Config{
		URL:    strings.TrimRight(cfg.Server, "/") + "/v1/tts/speak",
		Logger: log,
	})

	onError := func(e *shared.SessionError) {
		fmt.Fprintf(os.Stderr, "error [%s]: %s\n", e.Kind, e.Message)
	}

	duplex := transport.NewDuplex(sc, buf, onError)
	streaming := transport.NewStreaming(transport.StreamingConfig{
		Client: fc,
		Buffer: buf,
		Voice: fallback.Request{
			VoiceID: cfg.Voice,
			Model:   cfg.Model,
			Format:  cfg.Format,
		},
		OnError: onError,
		OnDone:  buf.Reset,
		Logger:  log,
	})
	sel := transport.NewSelector(duplex, streaming, log)

	// The server signals tts.end once synthesis is complete; only then is
	// it safe to finalize playback and release the session.
	sc.OnSessionEnded(func() {
		buf.Reset()
		sc.End()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.TimeoutSec)*time.Second)
	defer cancel()

	switch cfg.Mode {
	case "duplex":
		if err := sc.Start(ctx, protocol.StartOptions{
			VoiceID:    cfg.Voice,
			Model:      cfg.Model,
			Format:     cfg.Format,
			SampleRate: cfg.SampleRate,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "connect: %v\n", err)
			os.Exit(1)
		}
	case "stream":
		sel.SetMode(transport.ModeStreaming)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q (want duplex or stream)\n", cfg.Mode)
		os.Exit(1)
	}

	if err := sel.Speak(ctx, text); err != nil {
		fmt.Fprintf(os.Stderr, "speak: %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sink.Done():
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "timed out waiting for playback")
	case <-sig:
		sel.Cancel()
	}
	sc.Disconnect()
}
