// gtlsprobe checks whether the current process could host a TLS session:
// platform support, engine availability, engine version against a minimum,
// and optionally echoes a resolved session profile.
package main

import (
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/FanDjango/gnutls-stream/config"
	"github.com/FanDjango/gnutls-stream/engine"
	"github.com/FanDjango/gnutls-stream/gtls"
)

func main() {
	var (
		profilePath = flag.String("profile", "", "session profile to load and echo")
		minVersion  = flag.String("min-version", "", "minimum engine version to accept")
		verbosity   = flag.String("verbosity", "info", "log level")
	)
	flag.Parse()

	logger := initLogger(*verbosity)

	if err := run(logger, *profilePath, *minVersion); err != nil {
		logger.Fatal().Err(err).Msg("probe failed")
	}
}

func initLogger(verbosity string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	level, err := zerolog.ParseLevel(verbosity)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", "gtlsprobe").Logger()
}

func run(logger zerolog.Logger, profilePath, minVersion string) error {
	if err := engine.ValidateEnvironment(); err != nil {
		return errors.Wrap(err, "environment check")
	}
	logger.Info().
		Str("os", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("platform supported")

	opts := gtls.RuntimeOptions{MinVersion: minVersion, Verbosity: "disabled"}
	if profilePath != "" {
		p, err := config.Load(profilePath)
		if err != nil {
			return err
		}
		opts = p.RuntimeOptions(os.Stderr)
		if minVersion != "" {
			opts.MinVersion = minVersion
		}
		echoProfile(logger, p)
	}

	eng, err := engine.Load()
	if err != nil {
		loadErr := new(engine.EngineLoadError)
		if errors.As(err, &loadErr) {
			logger.Warn().
				Str("reason", loadErr.Reason).
				Msg("no native engine available")
			return nil
		}
		return errors.Wrap(err, "loading engine")
	}

	version, err := gtls.NewRuntime(eng, opts).EngineVersion()
	if err != nil {
		return errors.Wrap(err, "probing engine")
	}
	logger.Info().Str("version", version).Msg("engine available")
	return nil
}

func echoProfile(logger zerolog.Logger, p config.Profile) {
	cfg, err := p.SessionConfig()
	if err != nil {
		logger.Warn().Err(err).Msg("profile session config incomplete")
		return
	}
	logger.Info().
		Str("hostname", cfg.Hostname).
		Str("alpn", cfg.ALPN).
		Str("priority", cfg.Priority).
		Dur("handshake_timeout", cfg.HandshakeTimeout).
		Dur("poll_timeout", cfg.PollTimeout).
		Bool("client_key_pair", len(cfg.ClientCertPEM) > 0).
		Msg("profile loaded")
}
