package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ticketdesk/orderbot/config"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/types"
)

var (
	// ErrNotImage is returned for attachments that are not images, by
	// announced type or by content.
	ErrNotImage = errors.New("attachment is not an image")
	// ErrTooLarge is returned when the download exceeds the configured size.
	ErrTooLarge = errors.New("attachment exceeds maximum size")
)

// AttachmentService downloads image attachments to a local working directory.
// The caller owns every returned LocalAttachment and must Release it.
type AttachmentService struct {
	httpClient  *http.Client
	downloadDir string
	maxBytes    int64
	timeout     time.Duration
}

func NewAttachmentService(ocr config.OCRConfig, pipeline config.PipelineConfig, httpClient *http.Client) (*AttachmentService, error) {
	if err := os.MkdirAll(ocr.DownloadDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AttachmentService{
		httpClient:  httpClient,
		downloadDir: ocr.DownloadDir,
		maxBytes:    ocr.MaxAttachmentBytes,
		timeout:     time.Duration(pipeline.FetchTimeoutSeconds) * time.Second,
	}, nil
}

func (s *AttachmentService) Fetch(ctx context.Context, att types.Attachment) (*types.LocalAttachment, error) {
	if !att.IsImage() {
		return nil, ErrNotImage
	}
	if s.maxBytes > 0 && int64(att.Size) > s.maxBytes {
		return nil, ErrTooLarge
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	// Server-side MIME detection
	sniffBuf := make([]byte, 512)
	n, err := io.ReadFull(resp.Body, sniffBuf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read attachment header: %w", err)
	}
	detectedMIME := mimetype.Detect(sniffBuf[:n]).String()
	if !strings.HasPrefix(detectedMIME, "image/") {
		logger.FromContext(ctx).Infow("Attachment content is not an image",
			"filename", att.Filename,
			"announced", att.ContentType,
			"detected", detectedMIME)
		return nil, ErrNotImage
	}

	f, err := os.CreateTemp(s.downloadDir, "att-*"+safeExt(att.Filename))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	local := types.NewLocalAttachment(att, f.Name(), detectedMIME, 0)

	reader := io.MultiReader(bytes.NewReader(sniffBuf[:n]), resp.Body)
	if s.maxBytes > 0 {
		reader = io.LimitReader(reader, s.maxBytes+1)
	}
	written, copyErr := io.Copy(f, reader)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		_ = local.Release()
		return nil, fmt.Errorf("failed to write attachment: %w", copyErr)
	case closeErr != nil:
		_ = local.Release()
		return nil, fmt.Errorf("failed to write attachment: %w", closeErr)
	case s.maxBytes > 0 && written > s.maxBytes:
		_ = local.Release()
		return nil, ErrTooLarge
	}

	local.Size = written
	return local, nil
}

func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 6 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}
