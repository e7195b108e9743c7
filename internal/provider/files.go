package provider

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"research-master/internal/domain"
	"research-master/internal/errors"
	"research-master/internal/pdf"
	"research-master/internal/sanitize"
)

// ResolvePDF locates the PDF URL for one paper. Adapters supply this;
// everything after URL resolution is the same for every source.
type ResolvePDF func(ctx context.Context, req *domain.DownloadRequest) (string, error)

// FileFetcher carries the download and read operations shared by every
// adapter that can produce a PDF. Downloads land atomically: the body
// streams into a temp file that is renamed only on success.
type FileFetcher struct {
	source  domain.Source
	client  *Client
	resolve ResolvePDF
	extract *pdf.Extractor
}

func NewFileFetcher(source domain.Source, client *Client, resolve ResolvePDF) *FileFetcher {
	return &FileFetcher{
		source:  source,
		client:  client,
		resolve: resolve,
		extract: pdf.NewExtractor(),
	}
}

// Download resolves the paper's PDF URL and streams it to req.SavePath,
// which must be a file path (directory resolution happens upstream).
func (f *FileFetcher) Download(ctx context.Context, req *domain.DownloadRequest) (*domain.DownloadResult, error) {
	if err := sanitize.PaperID(req.PaperID); err != nil {
		return nil, err
	}
	if req.SavePath == "" {
		return nil, errors.InvalidRequest("download save path must not be empty")
	}

	pdfURL, err := f.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if pdfURL == "" {
		return nil, errors.NotFound(string(f.source), "No PDF available")
	}
	if err := sanitize.URL(pdfURL); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(req.SavePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.IO("creating download directory", err)
		}
	}
	tmp := req.SavePath + "." + uuid.NewString() + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return nil, errors.IO("creating download file", err)
	}

	n, err := f.client.Download(ctx, pdfURL, out)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = errors.IO("writing download file", closeErr)
	}
	if err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, req.SavePath); err != nil {
		os.Remove(tmp)
		return nil, errors.IO("moving download into place", err)
	}

	return &domain.DownloadResult{
		PaperID:   req.PaperID,
		FilePath:  req.SavePath,
		SizeBytes: n,
		Source:    f.source,
	}, nil
}

// Read extracts the text of the paper's PDF, downloading it first when
// the file is absent and the request allows it.
func (f *FileFetcher) Read(ctx context.Context, req *domain.ReadRequest) (*domain.ReadResult, error) {
	if err := sanitize.PaperID(req.PaperID); err != nil {
		return nil, err
	}
	if req.SavePath == "" {
		return nil, errors.InvalidRequest("read save path must not be empty")
	}

	if _, err := os.Stat(req.SavePath); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.IO("checking local pdf", err)
		}
		if !req.DownloadIfMissing {
			return nil, errors.NotFound(string(f.source), "no local copy at "+req.SavePath)
		}
		if _, err := f.Download(ctx, &domain.DownloadRequest{
			PaperID:  req.PaperID,
			SavePath: req.SavePath,
		}); err != nil {
			return nil, err
		}
	}

	text, pages, err := f.extract.Extract(req.SavePath)
	if err != nil {
		if stderrors.Is(err, pdf.ErrInvalidFile) || stderrors.Is(err, pdf.ErrExtractionFailed) {
			return nil, errors.Parse(string(f.source), "extracting pdf text", err)
		}
		return nil, errors.IO("reading pdf", err)
	}

	return &domain.ReadResult{
		PaperID:  req.PaperID,
		FilePath: req.SavePath,
		Text:     text,
		Pages:    pages,
		Source:   f.source,
	}, nil
}
