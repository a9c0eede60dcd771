package main

import (
	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"go.pieceflow.dev/core/backend/registry"
	mbp "go.pieceflow.dev/core/mainboilerplate"
)

const iniFilename = "backendctl.ini"

// Config common to all backendctl commands.
var baseCfg = new(struct {
	Log         mbp.LogConfig         `group:"Logging" namespace:"log" env-namespace:"LOG"`
	Diagnostics mbp.DiagnosticsConfig `group:"Debug" namespace:"debug" env-namespace:"DEBUG"`

	Plugin struct {
		Dir string `long:"dir" env:"DIR" description:"Plugin root. Extension backends are loaded from its 'backend' sub-directory"`
	} `group:"Plugin" namespace:"plugin" env-namespace:"PLUGIN"`

	Request       requestConfig       `group:"Request" namespace:"request" env-namespace:"REQUEST"`
	ObjectStorage objectStorageConfig `group:"Object Storage" namespace:"object-storage" env-namespace:"OBJECT_STORAGE"`
})

// startup initializes logging and builds the Factory of registered Backends.
func startup() *registry.Factory {
	mbp.InitLog(baseCfg.Log)

	log.WithFields(log.Fields{
		"version":   mbp.Version,
		"buildDate": mbp.BuildDate,
	}).Debug("backendctl started")

	var f, err = registry.New(baseCfg.Plugin.Dir)
	mbp.Must(err, "failed to build backend registry", "pluginDir", baseCfg.Plugin.Dir)
	return f
}

func mustAddCmd(cmd *flags.Command, name, short, long string, cfg interface{}) *flags.Command {
	cmd, err := cmd.AddCommand(name, short, long, cfg)
	mbp.Must(err, "failed to add command")
	return cmd
}

func main() {
	var parser = flags.NewParser(baseCfg, flags.Default)

	mbp.AddPrintConfigCmd(parser, iniFilename)
	parser.LongDescription = `backendctl is a tool for fetching content from registered origin backends.

	See --help pages of each sub-command for documentation and usage examples.
	Optionally configure backendctl with a '` + iniFilename + `' file in the current working directory,
	or with '~/.config/pieceflow/` + iniFilename + `'. Use the 'print-config' sub-command to inspect
	the tool's current configuration.
	`

	_ = mustAddCmd(parser.Command, "head", "Retrieve metadata of URLs", `
Retrieve metadata of one or more URLs, without transferring their content.

URLs are requested concurrently. A URL of an object-storage scheme which ends
in '/' designates a directory, and its recursive listing is included in the
output.

Examples:

# Metadata of an object.
backendctl head s3://bucket/path/to/object --object-storage.region=us-east-1

# Listing of a directory, as JSON.
backendctl head --format=json gcs://bucket/path/to/dir/
`, &cmdHead{})

	_ = mustAddCmd(parser.Command, "get", "Fetch the content of a URL", `
Fetch the content of a URL, or of a byte range of it.

Content is written to stdout unless --output is given.

Examples:

# Fetch bytes [1024, 1536) of an object into a file.
backendctl get https://example.com/large.bin --range=1024:512 --output=part.bin
`, &cmdGet{})

	_ = mustAddCmd(parser.Command, "schemes", "List registered backend schemes", `
List the scheme and kind of every registered backend, including extension
backends loaded from --plugin.dir.
`, &cmdSchemes{})

	mbp.MustParseConfig(parser, iniFilename)
}
