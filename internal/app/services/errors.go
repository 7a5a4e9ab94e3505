package services

import (
	"errors"

	"github.com/fr0stylo/photomigrate/internal/app/domain"
)

var (
	// ErrIdentifierNotFound indicates the row identifier has no CRM record.
	ErrIdentifierNotFound = errors.New("identifier not found")
	// ErrFilenameExtraction indicates the image URL path has no file name.
	ErrFilenameExtraction = errors.New("filename could not be extracted")
	// ErrFetchFailed indicates the image download failed.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrUploadFailed indicates the object store rejected the upload.
	ErrUploadFailed = errors.New("upload failed")
	// ErrIndexBuildFailed indicates the CRM bulk query failed. Fatal to a run.
	ErrIndexBuildFailed = errors.New("index build failed")
)

// ClassifyRowError maps a row-scoped error onto its recorded failure kind.
func ClassifyRowError(err error) domain.FailureKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIdentifierNotFound):
		return domain.FailureIdentifierNotFound
	case errors.Is(err, ErrFilenameExtraction):
		return domain.FailureFilenameExtraction
	case errors.Is(err, ErrFetchFailed):
		return domain.FailureFetch
	case errors.Is(err, ErrUploadFailed):
		return domain.FailureUpload
	default:
		return domain.FailureUnexpected
	}
}
