package utils

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gabriel-vasile/mimetype"
)

// MaxDocumentSize bounds uploaded PDFs.
const MaxDocumentSize = 10 << 20

var ErrNotPDF = errors.New("document must be a PDF")

// CheckPDF verifies the uploaded file is a PDF within MaxDocumentSize and
// rewinds it so it can be uploaded afterwards.
func CheckPDF(file multipart.File, header *multipart.FileHeader) error {
	if header.Size > MaxDocumentSize {
		return fmt.Errorf("%s exceeds %d bytes", header.Filename, MaxDocumentSize)
	}
	mt, err := mimetype.DetectReader(file)
	if err != nil {
		return fmt.Errorf("detect type of %s: %w", header.Filename, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", header.Filename, err)
	}
	if !mt.Is("application/pdf") {
		return fmt.Errorf("%w: %s is %s", ErrNotPDF, header.Filename, mt.String())
	}
	return nil
}
