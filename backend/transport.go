package backend

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// NewHTTPClient returns a client over a fresh transport, with a |timeout|
// covering each request through the read of its response body. |roots|
// are trusted in addition to the system roots.
func NewHTTPClient(timeout time.Duration, roots []*x509.Certificate) *http.Client {
	var transport = http.DefaultTransport.(*http.Transport).Clone()

	if len(roots) != 0 {
		var pool, err = x509.SystemCertPool()
		if err != nil {
			log.WithField("err", err).Warn("failed to load system cert pool")
			pool = x509.NewCertPool()
		}
		for _, cert := range roots {
			pool.AddCert(cert)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// CloseIdleOnClose returns |rc| with a Close which also closes idle
// connections of |client|. Clients of NewHTTPClient own their transport,
// and its keep-alive connections are otherwise held until they time out.
func CloseIdleOnClose(rc io.ReadCloser, client *http.Client) io.ReadCloser {
	return &closeIdleBody{ReadCloser: rc, client: client}
}

type closeIdleBody struct {
	io.ReadCloser
	client *http.Client
}

func (b *closeIdleBody) Close() error {
	var err = b.ReadCloser.Close()
	b.client.CloseIdleConnections()
	return err
}
