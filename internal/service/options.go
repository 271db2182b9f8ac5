package service

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"

	"wsbridge-go/internal/config"
	"wsbridge-go/internal/model"
	"wsbridge-go/internal/transform"
)

// OptionsFromConfig builds the immutable proxy options shared by every bridge.
func OptionsFromConfig(cfg *config.Config) (*model.ProxyOptions, error) {
	target, err := url.Parse(cfg.Target.URL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}

	tlsCfg, err := targetTLS(cfg.Target.TLS)
	if err != nil {
		return nil, err
	}

	clientTransform, err := transform.Build(cfg.Transform.Client.Spec())
	if err != nil {
		return nil, fmt.Errorf("client transform: %w", err)
	}
	serverTransform, err := transform.Build(cfg.Transform.Server.Spec())
	if err != nil {
		return nil, fmt.Errorf("server transform: %w", err)
	}

	return &model.ProxyOptions{
		Target:          target,
		TLS:             tlsCfg,
		Forward:         cfg.Forwarding.Enabled,
		ChangeOrigin:    cfg.Target.ChangeOrigin,
		ClientTransform: clientTransform,
		ServerTransform: serverTransform,
		MaxMessageSize:  cfg.Relay.MaxMessageBytes,
	}, nil
}

func targetTLS(c config.TargetTLSConfig) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed targets
	}
	if c.CAFile == "" {
		return tc, nil
	}

	pem, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read target ca_file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("target ca_file %s: no PEM certificates found", c.CAFile)
	}
	tc.RootCAs = pool
	return tc, nil
}
