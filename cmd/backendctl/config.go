package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"go.pieceflow.dev/core/backend"
)

type requestConfig struct {
	Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"Timeout of each request"`
	Headers []string      `long:"header" short:"H" description:"Header of requests, as 'Name: value'. May be repeated"`
	CACerts []string      `long:"ca-cert" env:"CA_CERTS" env-delim:"," description:"PEM file of additional trusted root certificates. May be repeated"`
}

type objectStorageConfig struct {
	AccessKeyID     string `long:"access-key-id" env:"ACCESS_KEY_ID" description:"Access key ID (the account name of Azure Blob Storage)"`
	AccessKeySecret string `long:"access-key-secret" env:"ACCESS_KEY_SECRET" description:"Secret of the access key (the account key of Azure Blob Storage)"`
	SessionToken    string `long:"session-token" env:"SESSION_TOKEN" description:"Session token of temporary credentials"`
	Region          string `long:"region" env:"REGION" description:"Region of the bucket"`
	Endpoint        string `long:"endpoint" env:"ENDPOINT" description:"Endpoint of the provider service, overriding its default"`
	CredentialPath  string `long:"credential-path" env:"CREDENTIAL_PATH" description:"Path to a JSON credential file (Google Cloud Storage)"`
	PredefinedACL   string `long:"predefined-acl" env:"PREDEFINED_ACL" description:"Predefined ACL (Google Cloud Storage)"`
}

// header builds the http.Header of configured "Name: value" pairs.
func (cfg requestConfig) header() (http.Header, error) {
	var out = make(http.Header)
	for _, h := range cfg.Headers {
		var ind = strings.IndexByte(h, ':')
		if ind <= 0 {
			return nil, fmt.Errorf("header %q is not of the form 'Name: value'", h)
		}
		out.Add(strings.TrimSpace(h[:ind]), strings.TrimSpace(h[ind+1:]))
	}
	return out, nil
}

// roots loads the configured CA certificate files from |fs|.
func (cfg requestConfig) roots(fs afero.Fs) ([]*x509.Certificate, error) {
	var out []*x509.Certificate

	for _, path := range cfg.CACerts {
		var data, err = afero.ReadFile(fs, path)
		if err != nil {
			return nil, errors.WithMessagef(err, "reading %s", path)
		}
		for {
			var block *pem.Block
			if block, data = pem.Decode(data); block == nil {
				break
			} else if block.Type != "CERTIFICATE" {
				continue
			}
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, errors.WithMessagef(err, "parsing certificate of %s", path)
			}
			out = append(out, cert)
		}
	}
	return out, nil
}

// objectStorage returns configured credentials, or nil if there are none.
func (cfg objectStorageConfig) objectStorage(fs afero.Fs) (*backend.ObjectStorage, error) {
	var out = backend.ObjectStorage{
		AccessKeyID:     cfg.AccessKeyID,
		AccessKeySecret: cfg.AccessKeySecret,
		SessionToken:    cfg.SessionToken,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		PredefinedACL:   cfg.PredefinedACL,
	}
	if cfg.CredentialPath != "" {
		var data, err = afero.ReadFile(fs, cfg.CredentialPath)
		if err != nil {
			return nil, errors.WithMessage(err, "reading credential")
		}
		out.Credential = string(data)
	}

	if out == (backend.ObjectStorage{}) {
		return nil, nil
	}
	return &out, nil
}

// parseRange parses a "START:LENGTH" byte range. An empty string is no range.
func parseRange(s string) (*backend.Range, error) {
	if s == "" {
		return nil, nil
	}
	var parts = strings.Split(s, ":")
	if len(parts) != 2 {
		return nil, fmt.Errorf("range %q is not of the form START:LENGTH", s)
	}
	start, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing start of range %q", s)
	}
	length, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return nil, errors.WithMessagef(err, "parsing length of range %q", s)
	}
	return &backend.Range{Start: start, Length: length}, nil
}
