// Package ledger writes run outcomes to the four CSV reconciliation files and reads input rows.
package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
	"github.com/fr0stylo/photomigrate/internal/app/ports"
)

// Default file names, relative to the output directory.
const (
	AccountUpdatesFile = "account_updates.csv"
	FileMetadataFile   = "amazon_files.csv"
	FailedFile         = "failed.csv"
	SucceededFile      = "succeeded.csv"
)

var (
	accountUpdateHeader = []string{"Id", "Image_Url__c"}
	fileMetadataHeader  = []string{"FileName__c", "Key__c", "MIME__c", "Size__c"}
	failedHeader        = []string{"Identifier__c", "Child Photo URL", "Error"}
	succeededHeader     = []string{"Identifier__c", "Child Photo URL", "FileName", "S3_Key", "MIME", "Size"}
)

// Factory opens a fresh set of CSV ledgers in Dir for each run. Existing files are truncated.
type Factory struct {
	Dir string
}

// Files lists the ledger paths a Set opened by f writes to.
func (f Factory) Files() []string {
	return []string{
		filepath.Join(f.Dir, AccountUpdatesFile),
		filepath.Join(f.Dir, FileMetadataFile),
		filepath.Join(f.Dir, FailedFile),
		filepath.Join(f.Dir, SucceededFile),
	}
}

// Open creates the four ledger files and writes their headers.
func (f Factory) Open() (ports.LedgerSet, error) {
	dir := f.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	s := &Set{}
	specs := []struct {
		dst    **sheet
		name   string
		header []string
	}{
		{&s.accountUpdates, AccountUpdatesFile, accountUpdateHeader},
		{&s.fileMetadata, FileMetadataFile, fileMetadataHeader},
		{&s.failed, FailedFile, failedHeader},
		{&s.succeeded, SucceededFile, succeededHeader},
	}
	for _, spec := range specs {
		sh, err := createSheet(filepath.Join(dir, spec.name), spec.header)
		if err != nil {
			return nil, errors.Join(err, s.Close())
		}
		*spec.dst = sh
	}
	return s, nil
}

// Set is one run's open ledger files. Record and Close are safe for concurrent use.
type Set struct {
	mu             sync.Mutex
	accountUpdates *sheet
	fileMetadata   *sheet
	failed         *sheet
	succeeded      *sheet
	closed         bool
}

// Record appends outcome to the failure ledger, or to the account-update, file-metadata and
// success ledgers together. Every touched file is flushed before Record returns.
func (s *Set) Record(_ context.Context, outcome domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("ledger: record on closed set")
	}

	if !outcome.Succeeded() {
		message := ""
		if outcome.Failure != nil {
			message = outcome.Failure.Message
		}
		return s.failed.write([]string{outcome.Identifier, outcome.ImageURL, message})
	}

	up := outcome.Upload
	size := strconv.FormatInt(up.ByteSize, 10)
	if err := s.accountUpdates.write([]string{up.RecordID, up.StorageKey}); err != nil {
		return err
	}
	if err := s.fileMetadata.write([]string{up.FileName, up.StorageKey, up.MIMEType, size}); err != nil {
		return err
	}
	return s.succeeded.write([]string{outcome.Identifier, outcome.ImageURL, up.FileName, up.StorageKey, up.MIMEType, size})
}

// Close flushes and closes every file. Calling it twice is a no-op.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, sh := range []*sheet{s.accountUpdates, s.fileMetadata, s.failed, s.succeeded} {
		if sh == nil {
			continue
		}
		if err := sh.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type sheet struct {
	path string
	file *os.File
	w    *csv.Writer
}

func createSheet(path string, header []string) (*sheet, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create ledger %s: %w", path, err)
	}
	sh := &sheet{path: path, file: file, w: csv.NewWriter(file)}
	if err := sh.write(header); err != nil {
		_ = file.Close()
		return nil, err
	}
	return sh, nil
}

func (sh *sheet) write(record []string) error {
	if err := sh.w.Write(record); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(sh.path), err)
	}
	sh.w.Flush()
	if err := sh.w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(sh.path), err)
	}
	return nil
}

func (sh *sheet) close() error {
	sh.w.Flush()
	flushErr := sh.w.Error()
	closeErr := sh.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(sh.path), flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(sh.path), closeErr)
	}
	return nil
}
