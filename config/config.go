// Package config loads TOML session profiles.
//
// A profile bundles the knobs a deployment cares about: target host, priority
// expression, timeouts, an optional client key pair and the runtime's logging
// setup. Fields left out of the file keep the library defaults.
package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/FanDjango/gnutls-stream/gtls"
)

// Profile is the on-disk shape of a session profile.
type Profile struct {
	Hostname           string `toml:"hostname"`
	ALPN               string `toml:"alpn"`
	Priority           string `toml:"priority"`
	HandshakeTimeout   string `toml:"handshake_timeout"`
	HandshakeTimeoutMS int64  `toml:"handshake_timeout_ms"`
	PollTimeout        string `toml:"poll_timeout"`
	PollTimeoutMS      int64  `toml:"poll_timeout_ms"`

	ClientCertFile string `toml:"client_cert_file"`
	ClientKeyFile  string `toml:"client_key_file"`

	Verbosity        string `toml:"verbosity"`
	LogQueueSize     int    `toml:"log_queue_size"`
	MinEngineVersion string `toml:"min_engine_version"`

	handshakeTimeout time.Duration
	pollTimeout      time.Duration
}

// Load reads and validates a profile file.
func Load(path string) (Profile, error) {
	var p Profile
	meta, err := toml.DecodeFile(path, &p)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "loading profile %q", path)
	}

	if strings.TrimSpace(p.Hostname) == "" {
		return Profile{}, errors.Errorf("profile %q: hostname is required", path)
	}

	p.handshakeTimeout, err = parseTimeout(meta, "handshake_timeout", p.HandshakeTimeout, p.HandshakeTimeoutMS)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "profile %q", path)
	}
	p.pollTimeout, err = parseTimeout(meta, "poll_timeout", p.PollTimeout, p.PollTimeoutMS)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "profile %q", path)
	}

	return p, nil
}

// parseTimeout accepts either a duration string ("30s") or a _ms integer
// field. The duration string wins when both are set.
func parseTimeout(meta toml.MetaData, key, str string, ms int64) (time.Duration, error) {
	if meta.IsDefined(key) {
		d, err := time.ParseDuration(strings.TrimSpace(str))
		if err != nil {
			return 0, errors.Wrapf(err, "parsing %s", key)
		}
		if d <= 0 {
			return 0, errors.Errorf("%s must be positive", key)
		}
		return d, nil
	}
	if meta.IsDefined(key + "_ms") {
		if ms <= 0 {
			return 0, errors.Errorf("%s_ms must be positive", key)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, nil
}

// SessionConfig converts the profile into a session Config. Client key pair
// files, when named, are read here so the session layer only sees PEM bytes.
func (p Profile) SessionConfig() (gtls.Config, error) {
	cfg := gtls.Config{
		Hostname:         p.Hostname,
		ALPN:             p.ALPN,
		Priority:         p.Priority,
		HandshakeTimeout: p.handshakeTimeout,
		PollTimeout:      p.pollTimeout,
	}

	if p.ClientCertFile == "" && p.ClientKeyFile == "" {
		return cfg, nil
	}
	if p.ClientCertFile == "" || p.ClientKeyFile == "" {
		return gtls.Config{}, errors.New("client_cert_file and client_key_file must be set together")
	}

	var err error
	cfg.ClientCertPEM, err = os.ReadFile(p.ClientCertFile)
	if err != nil {
		return gtls.Config{}, errors.Wrap(err, "reading client certificate")
	}
	cfg.ClientKeyPEM, err = os.ReadFile(p.ClientKeyFile)
	if err != nil {
		return gtls.Config{}, errors.Wrap(err, "reading client key")
	}
	return cfg, nil
}

// RuntimeOptions converts the profile's runtime knobs, directing log output
// to sink.
func (p Profile) RuntimeOptions(sink io.Writer) gtls.RuntimeOptions {
	return gtls.RuntimeOptions{
		MinVersion:   p.MinEngineVersion,
		LogSink:      sink,
		Verbosity:    p.Verbosity,
		LogQueueSize: p.LogQueueSize,
	}
}
