package extract

import (
	"bytes"
	"strings"

	"github.com/ledongthuc/pdf"

	"ats-optimizer/internal/common/errors"
)

// MinExtractedChars is the floor under which an upload is considered
// unusable. Scanned image PDFs typically extract nothing; sending that to
// the analyzer would burn a quota unit on garbage.
const MinExtractedChars = 50

// MaxUploadBytes caps accepted PDF uploads at 5MB.
const MaxUploadBytes = 5 << 20

// PDFText extracts the plain text of an uploaded PDF.
func PDFText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.ValidationError("PDF file is empty")
	}
	if len(data) > MaxUploadBytes {
		return "", errors.ValidationError("PDF file exceeds the 5MB limit")
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.ValidationError("Could not read PDF file. Please upload a valid PDF.")
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}

	content := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if len(content) < MinExtractedChars {
		return "", errors.ValidationError(
			"Could not extract enough text from the PDF. It may be a scanned image; please paste your CV text instead.")
	}

	return content, nil
}
