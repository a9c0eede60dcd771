package mainboilerplate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
)

// ConfigDirName is the directory, within the user's configuration root, in
// which INI files are searched for.
const ConfigDirName = "pieceflow"

// ConfigPaths returns the paths searched for an INI file of |configName|,
// in order:
//   - The current working directory.
//   - $APPLICATION_CONFIG_ROOT, if set.
//   - ~/.config/pieceflow (under the users's $HOME or %UserProfile% directory).
func ConfigPaths(configName string) []string {
	var prefixes = []string{"."}
	if root := os.Getenv("APPLICATION_CONFIG_ROOT"); root != "" {
		prefixes = append(prefixes, root)
	}
	prefixes = append(prefixes,
		filepath.Join(os.Getenv("HOME"), ".config", ConfigDirName),
		filepath.Join(os.Getenv("UserProfile"), ".config", ConfigDirName),
	)

	var out []string
	for _, prefix := range prefixes {
		out = append(out, filepath.Join(prefix, configName))
	}
	return out
}

// MustParseConfig parses the Parser from the first INI file of
// ConfigPaths which exists, then from environment bindings and os.Args, and
// executes the selected command. It exits the process if parsing fails.
func MustParseConfig(parser *flags.Parser, configName string) {
	if err := parseINI(parser, ConfigPaths(configName)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if code := parseArgs(parser, os.Args[1:], os.Stderr); code != 0 {
		os.Exit(code)
	}
}

// parseINI parses the first file of |paths| which exists. Options of the
// file which the Parser doesn't know are ignored.
func parseINI(parser *flags.Parser, paths []string) error {
	var options = parser.Options
	parser.Options |= flags.IgnoreUnknown
	defer func() { parser.Options = options }()

	var ini = flags.NewIniParser(parser)
	for _, path := range paths {
		if err := ini.ParseFile(path); os.IsNotExist(err) {
			continue
		} else {
			return err
		}
	}
	return nil
}

// parseArgs parses |args|, executing the selected command, and returns the
// exit code of the process. An invalid Parser definition panics, as does an
// error returned by the executed command.
func parseArgs(parser *flags.Parser, args []string, stderr io.Writer) int {
	var _, err = parser.ParseArgs(args)
	if err == nil {
		return 0
	}

	var flagErr *flags.Error
	if !errors.As(err, &flagErr) {
		Must(err, "command failed")
	}

	switch flagErr.Type {
	case flags.ErrDuplicatedFlag, flags.ErrTag, flags.ErrInvalidTag, flags.ErrShortNameTooLong, flags.ErrMarshal:
		panic(err)
	case flags.ErrCommandRequired:
		// Follow go-flags' terse "Please specify one command" with full usage.
		fmt.Fprintln(stderr)
		parser.WriteHelp(stderr)
		writeVersion(stderr)
	case flags.ErrHelp:
		if parser.Options&flags.PrintErrors == 0 {
			parser.WriteHelp(stderr)
		}
		writeVersion(stderr)
	}
	// Input errors were already printed by go-flags.
	return 1
}

func writeVersion(w io.Writer) {
	fmt.Fprintf(w, "\nVersion %s, built at %s.\n", Version, BuildDate)
}

// AddPrintConfigCmd adds a "print-config" command to the Parser, which
// writes the effective configuration to stdout in INI format.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	var _, err = parser.AddCommand("print-config", "Print combined configuration and exit", `
print-config writes the configuration combined from `+configName+`, environment
variables and flags to stdout, in INI format.
`, &printConfigCmd{parser: parser, w: os.Stdout})
	Must(err, "failed to add print-config command")
}

type printConfigCmd struct {
	parser *flags.Parser
	w      io.Writer
}

func (c *printConfigCmd) Execute([]string) error {
	flags.NewIniParser(c.parser).Write(c.w, flags.IniIncludeComments|flags.IniCommentDefaults|flags.IniIncludeDefaults)
	return nil
}
