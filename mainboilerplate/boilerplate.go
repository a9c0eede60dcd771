// Package mainboilerplate contains shared boilerplate for this project's
// programs. The idea is to provide a selection of narrowly scoped methods so
// callers do not have to buy-in to an all-or-nothing approach.
package mainboilerplate

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	// Version of the program, set at link time.
	Version = "development"
	// BuildDate of the program, set at link time.
	BuildDate = "unknown"
)

// DiagnosticsConfig configures pull-based application metrics.
type DiagnosticsConfig struct {
	Addr string `long:"addr" env:"ADDR" description:"Address at which to serve /debug/metrics and /debug/ready. Disabled if empty"`
}

// InitDiagnosticsAndRecover serves metrics and a readiness check at the
// configured address, if there is one. It also returns a closure which
// should be deferred, which recovers a panic and attempts to log a K8s
// termination message.
func InitDiagnosticsAndRecover(cfg DiagnosticsConfig) func() {
	if cfg.Addr != "" {
		var mux = http.NewServeMux()
		mux.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		mux.Handle("/debug/metrics", promhttp.Handler())

		var ln, err = net.Listen("tcp", cfg.Addr)
		Must(err, "failed to listen for diagnostics", "addr", cfg.Addr)

		go func() {
			if err := http.Serve(ln, mux); err != nil {
				log.WithField("err", err).Warn("diagnostics server stopped")
			}
		}()
		log.WithField("addr", ln.Addr().String()).Info("serving diagnostics")
	}

	return func() {
		if r := recover(); r != nil {
			// Make a best effort attempt to write a termination message.
			// Bug: https://github.com/kubernetes/kubernetes/issues/31839
			if f, err := os.OpenFile(k8sTerminationLog, os.O_WRONLY, 0777); err == nil {
				fmt.Fprintf(f, "%+v", r)
				f.Close()
			}
			panic(r)
		}
	}
}

// Must panics if |err| is non-nil, supplying |msg| and |extra| as
// formatter and fields of the generated panic.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		f[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(f).Panic(msg)
}

const (
	// k8sTerminationLog is the location to write a termination message for
	// Kubernetes to retrieve.
	//
	// Link: https://kubernetes.io/docs/tasks/debug-application-cluster/determine-reason-pod-failure/#setting-the-termination-log-file
	k8sTerminationLog = "/dev/termination-log"
)
