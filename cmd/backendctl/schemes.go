package main

import (
	"io"
	"os"

	"github.com/olekukonko/tablewriter"

	"go.pieceflow.dev/core/backend/registry"
	mbp "go.pieceflow.dev/core/mainboilerplate"
)

type cmdSchemes struct{}

func (cmd *cmdSchemes) Execute([]string) error {
	defer mbp.InitDiagnosticsAndRecover(baseCfg.Diagnostics)()
	return renderSchemes(os.Stdout, startup())
}

func renderSchemes(w io.Writer, f *registry.Factory) error {
	var table = tablewriter.NewWriter(w)
	table.Header("Scheme", "Kind")

	for _, scheme := range f.Schemes() {
		if err := table.Append([]string{scheme, f.Kind(scheme)}); err != nil {
			return err
		}
	}
	return table.Render()
}
