// Package batch issues certificates for every row of a CSV table.
//
// Rows are encoded independently and may run in parallel. A failing row
// is recorded with its error and never aborts the rest of the batch.
package batch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/adamscao/certlink/internal/certificate"
	"github.com/adamscao/certlink/internal/codec"
	"github.com/adamscao/certlink/internal/qrcode"
	"github.com/adamscao/certlink/internal/verifyurl"
)

// DefaultIssuer is used when neither the configuration nor the row
// names an issuer.
const DefaultIssuer = "Certificate Issuer"

// DefaultWorkers bounds parallel row encoding when Options.Workers is unset.
const DefaultWorkers = 4

// Options configures a batch run
type Options struct {
	Key      string
	Prefix   string
	Issuer   string
	BaseURL  string
	Workers  int
	RenderQR bool
	QR       qrcode.Options // zero value means qrcode.DefaultOptions
	// Start seeds generated IDs; row i gets Start in milliseconds + i.
	// Zero means now.
	Start time.Time
}

// Row is the outcome of one input row
type Row struct {
	Index       int
	Certificate certificate.Record // as submitted, normalized on success
	Token       string
	URL         string
	QR          []byte
	Err         error
}

// OK reports whether the row was encoded
func (r Row) OK() bool {
	return r.Err == nil
}

// Status is "Ready" or "Error: <message>"
func (r Row) Status() string {
	if r.Err != nil {
		return "Error: " + r.Err.Error()
	}
	return "Ready"
}

// Result holds every row in input order
type Result struct {
	ID        string
	StartedAt time.Time
	Rows      []Row

	qr qrcode.Options
}

// Succeeded returns rows that produced a token
func (r *Result) Succeeded() []Row {
	var rows []Row
	for _, row := range r.Rows {
		if row.OK() {
			rows = append(rows, row)
		}
	}
	return rows
}

// Failed returns rows that were rejected
func (r *Result) Failed() []Row {
	var rows []Row
	for _, row := range r.Rows {
		if !row.OK() {
			rows = append(rows, row)
		}
	}
	return rows
}

// ProcessCSV reads a CSV table from r and processes every row
func ProcessCSV(ctx context.Context, r io.Reader, opts Options) (*Result, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return Process(ctx, rows, opts)
}

// Process encodes each row. Cancellation stops scheduling new rows;
// unprocessed rows carry the context error and the partial result is
// returned together with it.
func Process(ctx context.Context, rows []certificate.Fields, opts Options) (*Result, error) {
	c, err := codec.New(opts.Key)
	if err != nil {
		return nil, err
	}

	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = certificate.DefaultIDPrefix
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if opts.QR == (qrcode.Options{}) {
		opts.QR = qrcode.DefaultOptions()
	}

	result := &Result{
		ID:        uuid.NewString(),
		StartedAt: start,
		Rows:      make([]Row, len(rows)),
		qr:        opts.QR,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, fields := range rows {
		if err := gctx.Err(); err != nil {
			result.Rows[i] = Row{Index: i, Err: err}
			continue
		}

		id := certificate.GenerateID(prefix, start.UnixMilli()+int64(i))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				result.Rows[i] = Row{Index: i, Err: err}
				return nil
			}
			result.Rows[i] = processRow(c, i, id, fields, opts)
			return nil
		})
	}
	_ = g.Wait()

	return result, ctx.Err()
}

func processRow(c *codec.Codec, index int, id string, fields certificate.Fields, opts Options) Row {
	submitted := certificate.Fields{
		certificate.FieldCertificateID:  id,
		certificate.FieldFullName:       fields[certificate.FieldFullName],
		certificate.FieldCourseName:     fields[certificate.FieldCourseName],
		certificate.FieldCompletionDate: fields[certificate.FieldCompletionDate],
		certificate.FieldIssuer:         issuerFor(opts.Issuer, fields),
	}

	row := Row{
		Index:       index,
		Certificate: asSubmitted(submitted),
	}

	encoded, err := c.Encode(submitted)
	if err != nil {
		row.Err = err
		return row
	}

	row.Certificate = encoded.Record
	row.Token = encoded.Token
	row.URL = verifyurl.Build(opts.BaseURL, encoded.Token)

	if opts.RenderQR {
		png, err := qrcode.Render(row.URL, opts.QR)
		if err != nil {
			row.Err = fmt.Errorf("failed to render qr code: %w", err)
			return row
		}
		row.QR = png
	}

	return row
}

func issuerFor(configured string, fields certificate.Fields) any {
	if configured != "" {
		return configured
	}
	if issuer, ok := fields[certificate.FieldIssuer].(string); ok && strings.TrimSpace(issuer) != "" {
		return issuer
	}
	return DefaultIssuer
}

func asSubmitted(fields certificate.Fields) certificate.Record {
	text := func(name string) string {
		s, _ := fields[name].(string)
		return s
	}
	return certificate.Record{
		CertificateID:  text(certificate.FieldCertificateID),
		FullName:       text(certificate.FieldFullName),
		CourseName:     text(certificate.FieldCourseName),
		CompletionDate: text(certificate.FieldCompletionDate),
		Issuer:         text(certificate.FieldIssuer),
	}
}
