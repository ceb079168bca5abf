package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	ErrUnsupportedFile = errors.New("only Excel files (.xlsx, .xls) are supported")
	ErrFileTooLarge    = errors.New("file exceeds the upload size limit")
)

// CheckUpload applies the client-side extension and size checks.
func (c *Client) CheckUpload(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(c.extensions, ext) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFile, filename)
	}
	if c.maxUpload > 0 && size > c.maxUpload {
		return fmt.Errorf("%w: %d > %d MB", ErrFileTooLarge, size, c.maxUpload/(1024*1024))
	}
	return nil
}

// UploadReportFile uploads a spreadsheet from disk.
func (c *Client) UploadReportFile(ctx context.Context, path string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[UploadReportFile] %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("[UploadReportFile] %w", err)
	}
	return c.UploadReport(ctx, filepath.Base(path), f, st.Size())
}

// UploadReport streams one file as multipart form data under the field "file".
func (c *Client) UploadReport(ctx context.Context, filename string, r io.Reader, size int64) (*UploadResult, error) {
	if err := c.CheckUpload(filename, size); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var resp UploadResult
	if err := c.do(ctx, http.MethodPost, RouteUploadReport, c.token(), pr, mw.FormDataContentType(), &resp); err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	return &resp, nil
}
