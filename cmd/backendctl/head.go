package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v2"

	"go.pieceflow.dev/core/backend"
	mbp "go.pieceflow.dev/core/mainboilerplate"
)

type cmdHead struct {
	Format string `long:"format" short:"o" choice:"table" choice:"json" choice:"yaml" default:"table" description:"Output format"`
	Args   struct {
		URLs []string `positional-arg-name:"URL" required:"1" description:"URLs to request"`
	} `positional-args:"yes"`
}

// headResult is the outcome of a head of one URL.
type headResult struct {
	URL           string             `json:"url" yaml:"url"`
	TaskID        string             `json:"taskId" yaml:"taskId"`
	Success       bool               `json:"success" yaml:"success"`
	StatusCode    int                `json:"statusCode,omitempty" yaml:"statusCode,omitempty"`
	ContentLength int64              `json:"contentLength" yaml:"contentLength"`
	Entries       []backend.DirEntry `json:"entries,omitempty" yaml:"entries,omitempty"`
	Error         string             `json:"error,omitempty" yaml:"error,omitempty"`
}

func (cmd *cmdHead) Execute([]string) error {
	defer mbp.InitDiagnosticsAndRecover(baseCfg.Diagnostics)()
	var factory = startup()

	var header, err = baseCfg.Request.header()
	mbp.Must(err, "failed to parse request headers")
	roots, err := baseCfg.Request.roots(afero.NewOsFs())
	mbp.Must(err, "failed to load CA certificates")
	creds, err := baseCfg.ObjectStorage.objectStorage(afero.NewOsFs())
	mbp.Must(err, "failed to load object storage credentials")

	var results = make([]headResult, len(cmd.Args.URLs))
	var group, ctx = errgroup.WithContext(context.Background())

	for i, u := range cmd.Args.URLs {
		results[i] = headResult{URL: u, TaskID: uuid.New().String(), ContentLength: -1}

		group.Go(func() error {
			var b, err = factory.Resolve(u)
			if err != nil {
				return err
			}
			resp, err := b.Head(ctx, backend.HeadRequest{
				TaskID:        results[i].TaskID,
				URL:           u,
				Header:        header,
				Timeout:       baseCfg.Request.Timeout,
				ClientCerts:   roots,
				ObjectStorage: creds,
			})
			if err != nil {
				// Origin errors are reported per-URL, and don't abort other requests.
				log.WithFields(log.Fields{"url": u, "err": err}).Warn("head failed")
				results[i].Error = err.Error()
				return nil
			}
			results[i].Success = resp.Success
			results[i].StatusCode = resp.StatusCode
			results[i].ContentLength = resp.ContentLength
			results[i].Entries = resp.Entries
			results[i].Error = resp.ErrorMessage
			return nil
		})
	}
	mbp.Must(group.Wait(), "failed to resolve URL")

	return writeHeadResults(os.Stdout, cmd.Format, results)
}

func writeHeadResults(w io.Writer, format string, results []headResult) error {
	switch format {
	case "yaml":
		var enc = yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(results)
	case "json":
		var enc = json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		return renderHeadTable(w, results)
	}
}

// renderHeadTable writes |results| as a table. Entries of a directory follow
// the row of the directory itself.
func renderHeadTable(w io.Writer, results []headResult) error {
	var table = tablewriter.NewWriter(w)
	table.Header("URL", "Status", "Size", "Error")

	for _, r := range results {
		var status = "OK"
		if !r.Success {
			status = "FAILED"
		}
		if r.StatusCode != 0 {
			status += " (" + strconv.Itoa(r.StatusCode) + ")"
		}
		if err := table.Append([]string{r.URL, status, formatSize(r.ContentLength), r.Error}); err != nil {
			return err
		}

		for _, e := range r.Entries {
			var size = formatSize(e.ContentLength)
			if e.IsDir {
				size = "<dir>"
			}
			if err := table.Append([]string{"  " + e.URL, "", size, ""}); err != nil {
				return err
			}
		}
	}
	return table.Render()
}

func formatSize(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return fmt.Sprintf("%s (%d)", humanize.IBytes(uint64(n)), n)
}
