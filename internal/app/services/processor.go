package services

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
	"github.com/fr0stylo/photomigrate/internal/app/ports"
)

// DefaultMIMEType is used when neither the response nor the file extension names a type.
const DefaultMIMEType = "application/octet-stream"

// RowProcessor turns one input row into an uploaded object or a recorded failure.
type RowProcessor struct {
	fetcher ports.Fetcher
	store   ports.ObjectStore
	log     *slog.Logger
}

// NewRowProcessor constructs a processor over the download and storage capabilities.
func NewRowProcessor(fetcher ports.Fetcher, store ports.ObjectStore, log *slog.Logger) *RowProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &RowProcessor{fetcher: fetcher, store: store, log: log}
}

// Process handles one row. It never returns an error: every problem becomes a Failure outcome.
func (p *RowProcessor) Process(ctx context.Context, row domain.Row, index Index) (outcome domain.Outcome) {
	identifier := strings.TrimSpace(row.Identifier)
	imageURL := strings.TrimSpace(row.ImageURL)
	outcome = domain.Outcome{Line: row.Line, Identifier: identifier, ImageURL: imageURL}

	recordID, ok := index.Lookup(identifier)
	if !ok {
		return p.fail(ctx, outcome, ErrIdentifierNotFound)
	}

	defer func() {
		if r := recover(); r != nil {
			outcome.Upload = nil
			outcome = p.fail(ctx, outcome, fmt.Errorf("panic while processing row: %v", r))
		}
	}()

	upload, err := p.transfer(ctx, recordID, imageURL)
	if err != nil {
		return p.fail(ctx, outcome, err)
	}
	outcome.Upload = &upload
	p.log.DebugContext(ctx, "Row uploaded",
		"key", upload.StorageKey,
		"mime", upload.MIMEType,
		"size", upload.ByteSize,
	)
	return outcome
}

func (p *RowProcessor) transfer(ctx context.Context, recordID, imageURL string) (domain.Upload, error) {
	fileName, err := FileNameFromURL(imageURL)
	if err != nil {
		return domain.Upload{}, err
	}

	res, err := p.fetcher.Fetch(ctx, imageURL)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return domain.Upload{}, fmt.Errorf("%w: %s for url %s", ErrFetchFailed, statusText(res), imageURL)
	}

	upload := domain.Upload{
		RecordID:   recordID,
		FileName:   fileName,
		StorageKey: StorageKey(recordID, fileName),
		MIMEType:   ResolveMIMEType(res.Header.Get("Content-Type"), fileName),
		ByteSize:   int64(len(res.Body)),
	}

	if err := p.store.Put(ctx, upload.StorageKey, res.Body, upload.MIMEType); err != nil {
		return domain.Upload{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return upload, nil
}

func (p *RowProcessor) fail(ctx context.Context, outcome domain.Outcome, err error) domain.Outcome {
	kind := ClassifyRowError(err)
	outcome.Failure = &domain.Failure{Kind: kind, Message: err.Error()}
	p.log.WarnContext(ctx, "Row failed",
		"kind", string(kind),
		"url", outcome.ImageURL,
		"error", err,
	)
	return outcome
}

// FileNameFromURL returns the last segment of the URL-decoded path. A path
// with an invalid escape such as "100%.jpg" keeps its raw segment.
func FileNameFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	var p string
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	} else if rawPath, ok := rawURLPath(raw); ok {
		p = rawPath
	} else {
		return "", fmt.Errorf("%w: %w", ErrFilenameExtraction, err)
	}
	name := p[strings.LastIndex(p, "/")+1:]
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return "", ErrFilenameExtraction
	}
	return name, nil
}

// rawURLPath cuts the path out of scheme://host/path?query#fragment without unescaping it.
func rawURLPath(raw string) (string, bool) {
	i := strings.Index(raw, "://")
	if i <= 0 {
		return "", false
	}
	rest := raw[i+len("://"):]
	if j := strings.IndexAny(rest, "?#"); j >= 0 {
		rest = rest[:j]
	}
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return "", false
	}
	return rest[slash:], true
}

// StorageKey is the object key for a record's file: "{recordID}/{fileName}".
func StorageKey(recordID, fileName string) string {
	return recordID + "/" + fileName
}

// ResolveMIMEType prefers the declared content type, then the file extension, then DefaultMIMEType.
func ResolveMIMEType(declared, fileName string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	if ext := path.Ext(fileName); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
				return mediaType
			}
			return byExt
		}
	}
	return DefaultMIMEType
}

func statusText(res ports.FetchResult) string {
	if status := strings.TrimSpace(res.Status); status != "" {
		return "status " + status
	}
	return fmt.Sprintf("status %d", res.StatusCode)
}
