package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	apperrors "github.com/neighbr/backend-go/internal/errors"
)

// PageExtractor 将文档字节解析为按页排列的文本
type PageExtractor interface {
	ExtractPages(ctx context.Context, data []byte) ([]string, error)
}

var licenseOnce sync.Once

// PDFExtractor 基于unipdf的PDF文本提取
type PDFExtractor struct{}

// NewPDFExtractor 创建PDF提取器，licenseKey为空时使用unipdf默认行为
func NewPDFExtractor(licenseKey string) (*PDFExtractor, error) {
	var err error
	if licenseKey != "" {
		licenseOnce.Do(func() {
			err = license.SetMeteredKey(licenseKey)
		})
	}
	if err != nil {
		return nil, fmt.Errorf("set unipdf license: %w", err)
	}
	return &PDFExtractor{}, nil
}

// ExtractPages 返回第1页到第N页的原始文本，任一页失败则整份文档失败
func (p *PDFExtractor) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, apperrors.NewDocumentParseError(fmt.Errorf("document is empty"))
	}

	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.NewDocumentParseError(fmt.Errorf("open pdf: %w", err))
	}

	encrypted, err := pdfReader.IsEncrypted()
	if err != nil {
		return nil, apperrors.NewDocumentParseError(fmt.Errorf("check encryption: %w", err))
	}
	if encrypted {
		ok, err := pdfReader.Decrypt([]byte(""))
		if err != nil || !ok {
			return nil, apperrors.NewDocumentParseError(fmt.Errorf("pdf is password protected"))
		}
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, apperrors.NewDocumentParseError(fmt.Errorf("get page count: %w", err))
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := pdfReader.GetPage(i)
		if err != nil {
			return nil, apperrors.NewDocumentParseError(fmt.Errorf("read page %d: %w", i, err))
		}
		ex, err := extractor.New(page)
		if err != nil {
			return nil, apperrors.NewDocumentParseError(fmt.Errorf("page %d extractor: %w", i, err))
		}
		text, err := ex.ExtractText()
		if err != nil {
			return nil, apperrors.NewDocumentParseError(fmt.Errorf("extract page %d: %w", i, err))
		}
		pages = append(pages, text)
	}
	return pages, nil
}
