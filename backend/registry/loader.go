package registry

import (
	"fmt"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.pieceflow.dev/core/backend"
)

// SymbolName is the symbol which extension modules must export. It must be
// a function of type `func() backend.Backend`, returning a new instance.
const SymbolName = "NewBackend"

// LibraryPrefix is the file name prefix of extension modules. The remainder
// of the file stem is the scheme served by the extension: `libhdfs.so`
// serves "hdfs".
const LibraryPrefix = "lib"

// Library is a loaded extension module.
type Library interface {
	Lookup(symName string) (plugin.Symbol, error)
}

// Opener loads the extension module at |path|.
type Opener func(path string) (Library, error)

// OpenPlugin is an Opener of Go plugins built with `-buildmode=plugin`.
// Opened modules execute in-process with full privileges, and there's no
// supported means of unloading them.
func OpenPlugin(path string) (Library, error) {
	var p, err = plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Extension is a Backend loaded from an extension module.
type Extension struct {
	// Scheme served by the Extension, derived from its file name.
	Scheme string
	// Path of the module.
	Path string
	// Backend built by the module.
	Backend backend.Backend
}

// ExtensionDir returns the directory of extension modules under |pluginRoot|.
func ExtensionDir(pluginRoot string) string {
	return filepath.Join(pluginRoot, backend.NAME)
}

// LoadExtensions loads every module within the ExtensionDir of |pluginRoot|.
// If the directory doesn't exist, no Extensions are returned and it's not an
// error. Sub-directories are skipped. Any module which fails to load, or
// doesn't export a valid SymbolName, fails the entire load with a
// *backend.PluginError.
func LoadExtensions(fs afero.Fs, open Opener, pluginRoot string) ([]Extension, error) {
	var dir = ExtensionDir(pluginRoot)

	if exists, err := afero.DirExists(fs, dir); err != nil {
		return nil, errors.WithMessagef(err, "checking extension directory %s", dir)
	} else if !exists {
		log.WithField("dir", dir).Warn("skipped loading extensions, because the directory does not exist")
		return nil, nil
	}

	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading extension directory %s", dir)
	}

	var out []Extension
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		var path = filepath.Join(dir, info.Name())

		ext, err := loadExtension(open, path)
		if err != nil {
			return nil, &backend.PluginError{Path: path, Err: err}
		}
		log.WithFields(log.Fields{
			"scheme": ext.Scheme,
			"path":   path,
		}).Info("loaded extension backend")

		out = append(out, ext)
	}
	return out, nil
}

func loadExtension(open Opener, path string) (Extension, error) {
	var scheme, err = schemeOf(path)
	if err != nil {
		return Extension{}, err
	}

	lib, err := open(path)
	if err != nil {
		return Extension{}, errors.WithMessage(err, "opening module")
	}
	sym, err := lib.Lookup(SymbolName)
	if err != nil {
		return Extension{}, errors.WithMessagef(err, "looking up %s", SymbolName)
	}

	// Go plugins expose an exported func as a value of its own type.
	var ctor, ok = sym.(func() backend.Backend)
	if !ok {
		return Extension{}, fmt.Errorf("symbol %s is a %T, not a func() backend.Backend", SymbolName, sym)
	}

	var b = ctor()
	if b == nil {
		return Extension{}, fmt.Errorf("%s returned a nil Backend", SymbolName)
	}
	return Extension{Scheme: scheme, Path: path, Backend: b}, nil
}

// schemeOf derives the scheme served by the module at |path|.
func schemeOf(path string) (string, error) {
	var base = filepath.Base(path)
	var stem = strings.TrimSuffix(base, filepath.Ext(base))

	if !strings.HasPrefix(stem, LibraryPrefix) {
		return "", fmt.Errorf("module file name %q must begin with %q", base, LibraryPrefix)
	} else if stem == LibraryPrefix {
		return "", fmt.Errorf("module file name %q has an empty scheme", base)
	}
	return strings.TrimPrefix(stem, LibraryPrefix), nil
}
