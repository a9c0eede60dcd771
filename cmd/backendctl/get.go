package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"go.pieceflow.dev/core/backend"
	mbp "go.pieceflow.dev/core/mainboilerplate"
)

type cmdGet struct {
	Range  string `long:"range" short:"r" description:"Byte range to fetch, as START:LENGTH. The entire resource is fetched if empty"`
	Output string `long:"output" short:"O" default:"-" description:"File to which content is written, or '-' for stdout"`
	Args   struct {
		URL string `positional-arg-name:"URL" required:"yes" description:"URL to fetch"`
	} `positional-args:"yes"`
}

func (cmd *cmdGet) Execute([]string) error {
	defer mbp.InitDiagnosticsAndRecover(baseCfg.Diagnostics)()
	var factory = startup()
	var fs = afero.NewOsFs()

	var rng, err = parseRange(cmd.Range)
	mbp.Must(err, "failed to parse --range")
	header, err := baseCfg.Request.header()
	mbp.Must(err, "failed to parse request headers")
	roots, err := baseCfg.Request.roots(fs)
	mbp.Must(err, "failed to load CA certificates")
	creds, err := baseCfg.ObjectStorage.objectStorage(fs)
	mbp.Must(err, "failed to load object storage credentials")

	b, err := factory.Resolve(cmd.Args.URL)
	mbp.Must(err, "failed to resolve URL")

	var req = backend.GetRequest{
		TaskID:        uuid.New().String(),
		PieceID:       uuid.New().String(),
		URL:           cmd.Args.URL,
		Range:         rng,
		Header:        header,
		Timeout:       baseCfg.Request.Timeout,
		ClientCerts:   roots,
		ObjectStorage: creds,
	}
	resp, err := b.Get(context.Background(), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !resp.Success {
		return fmt.Errorf("fetching %s: %s", cmd.Args.URL, resp.ErrorMessage)
	}

	var w io.Writer = os.Stdout
	if cmd.Output != "-" {
		var f, err = fs.Create(cmd.Output)
		mbp.Must(err, "failed to create output", "path", cmd.Output)
		defer f.Close()
		w = f
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"url":     cmd.Args.URL,
		"taskID":  req.TaskID,
		"bytes":   n,
		"written": humanize.IBytes(uint64(n)),
	}).Info("fetched content")

	return nil
}
