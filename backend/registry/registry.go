// Package registry resolves URLs to the backend.Backend serving their scheme.
//
// A Factory is built once at startup. It registers every builtin origin, and
// then each extension module found under the configured plugin root. The
// scheme table is read-only once New returns, and a Factory may be shared by
// concurrent requests without locking.
package registry

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.pieceflow.dev/core/backend"
	"go.pieceflow.dev/core/backend/httpbackend"
	"go.pieceflow.dev/core/backend/objectstorage"
)

// Kinds of registered Backends.
const (
	KindBuiltin = "builtin"
	KindPlugin  = "plugin"
)

// Factory is an immutable table of Backends, keyed on scheme.
type Factory struct {
	backends map[string]*instrumented
}

type options struct {
	fs       afero.Fs
	open     Opener
	builtins func() map[string]backend.Backend
}

// Option configures New.
type Option func(*options)

// WithFs scans extension directories of |fs| rather than the OS filesystem.
func WithFs(fs afero.Fs) Option { return func(o *options) { o.fs = fs } }

// WithOpener loads extension modules using |open| rather than OpenPlugin.
func WithOpener(open Opener) Option { return func(o *options) { o.open = open } }

// WithBuiltins registers the Backends returned by |fn| as builtins, in place
// of those returned by Builtins.
func WithBuiltins(fn func() map[string]backend.Backend) Option {
	return func(o *options) { o.builtins = fn }
}

// Builtins returns a new instance of each builtin Backend, keyed on scheme.
func Builtins() map[string]backend.Backend {
	var out = map[string]backend.Backend{
		backend.SchemeHTTP:  httpbackend.New(backend.SchemeHTTP),
		backend.SchemeHTTPS: httpbackend.New(backend.SchemeHTTPS),
	}
	for _, s := range objectstorage.Schemes {
		out[s.String()] = objectstorage.New(s)
	}
	return out
}

// New builds a Factory of builtin Backends, and of extensions loaded from
// |pluginRoot| if it's non-empty. An extension serving the scheme of a
// builtin replaces it: registration is last-write-wins. Any extension which
// fails to load fails New with a *backend.PluginError.
func New(pluginRoot string, opts ...Option) (*Factory, error) {
	var o = options{
		fs:       afero.NewOsFs(),
		open:     OpenPlugin,
		builtins: Builtins,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var f = &Factory{backends: make(map[string]*instrumented)}

	var builtins = o.builtins()
	for _, scheme := range sortedKeys(builtins) {
		f.register(scheme, builtins[scheme], KindBuiltin)
	}

	if pluginRoot != "" {
		var exts, err = LoadExtensions(o.fs, o.open, pluginRoot)
		if err != nil {
			log.WithFields(log.Fields{
				"root": pluginRoot,
				"err":  err,
			}).Error("failed to load extension backends")
			return nil, err
		}
		for _, ext := range exts {
			f.register(ext.Scheme, ext.Backend, KindPlugin)
		}
	}

	var counts = map[string]int{KindBuiltin: 0, KindPlugin: 0}
	for _, b := range f.backends {
		counts[b.kind]++
	}
	for kind, n := range counts {
		backendsRegistered.WithLabelValues(kind).Set(float64(n))
	}
	return f, nil
}

// register is called only by New.
func (f *Factory) register(scheme string, b backend.Backend, kind string) {
	if prev, ok := f.backends[scheme]; ok {
		log.WithFields(log.Fields{
			"scheme":   scheme,
			"previous": prev.kind,
			"next":     kind,
		}).Warn("backend registration overrides an existing scheme")
	}
	f.backends[scheme] = newInstrumented(scheme, kind, b)

	log.WithFields(log.Fields{
		"scheme": scheme,
		"kind":   kind,
	}).Info("registered backend")
}

// Resolve returns the Backend serving the scheme of |rawURL|. The same
// instance is returned for every URL of the scheme. If the URL doesn't parse
// or its scheme isn't registered, Resolve fails with
// backend.ErrInvalidParameter.
func (f *Factory) Resolve(rawURL string) (backend.Backend, error) {
	var u, err = url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing URL: %v", backend.ErrInvalidParameter, err)
	}
	var b, ok = f.backends[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("%w: no backend of scheme %q", backend.ErrInvalidParameter, u.Scheme)
	}
	return b, nil
}

// Schemes returns the sorted schemes of registered Backends.
func (f *Factory) Schemes() []string {
	var out = make([]string, 0, len(f.backends))
	for scheme := range f.backends {
		out = append(out, scheme)
	}
	sort.Strings(out)
	return out
}

// Kind returns the kind of the Backend registered for |scheme|, or empty if
// there is none.
func (f *Factory) Kind(scheme string) string {
	if b, ok := f.backends[scheme]; ok {
		return b.kind
	}
	return ""
}

func sortedKeys(m map[string]backend.Backend) []string {
	var out = make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var (
	backendsRegistered = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backend_registered",
		Help: "Number of registered backends, by kind",
	}, []string{"kind"})

	backendOperationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_operation_total",
		Help: "Total number of backend operations",
	}, []string{"scheme", "operation", "status"})

	backendOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_operation_duration_seconds",
		Help:    "Duration of backend operations in seconds, through the return of a response",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
	}, []string{"scheme", "operation", "status"})
)
