package batch

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/adamscao/certlink/internal/qrcode"
)

// ZipName returns the download name for the archive, qr-codes-<ms>.zip
func (r *Result) ZipName() string {
	return fmt.Sprintf("qr-codes-%d.zip", r.StartedAt.UnixMilli())
}

// Zip writes one <certificateId>.png per successful row. QR codes not
// rendered during processing are rendered here.
func (r *Result) Zip(w io.Writer) error {
	zipWriter := zip.NewWriter(w)

	for _, row := range r.Succeeded() {
		png := row.QR
		if png == nil {
			var err error
			png, err = qrcode.Render(row.URL, r.qr)
			if err != nil {
				zipWriter.Close()
				return fmt.Errorf("failed to render qr code for %s: %w", row.Certificate.CertificateID, err)
			}
		}

		fileWriter, err := zipWriter.Create(entryName(row.Certificate.CertificateID))
		if err != nil {
			zipWriter.Close()
			return fmt.Errorf("failed to create file in zip: %w", err)
		}
		if _, err := fileWriter.Write(png); err != nil {
			zipWriter.Close()
			return fmt.Errorf("failed to write file content: %w", err)
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return nil
}

func entryName(certificateID string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(certificateID)
	if name == "" {
		name = "certificate"
	}
	return name + ".png"
}
