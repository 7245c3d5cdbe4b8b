package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/logging"
)

// multipartMemory is how much of a form is held in memory before parts spill to disk.
const multipartMemory = 8 << 20

// File fields accepted by each upload endpoint. Every field takes at most one file.
var (
	registerFields    = []string{"avatar", "coverImage"}
	avatarFields      = []string{"avatar"}
	coverImageFields  = []string{"coverImage"}
	videoUploadFields = []string{"videoFile", "thumbnail"}
)

// Uploads spools multipart files to a local directory so services can hand them to
// the media store by path.
type Uploads struct {
	Dir      string
	MaxBytes int64
}

// spooledForm is a parsed multipart request. Cleanup removes every spooled file.
type spooledForm struct {
	request *http.Request
	paths   map[string]string
}

func (f *spooledForm) value(name string) string {
	return f.request.FormValue(name)
}

func (f *spooledForm) path(name string) string {
	return f.paths[name]
}

func (f *spooledForm) Cleanup() {
	for _, path := range f.paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.FromContext(f.request.Context()).Warn("failed to remove spooled upload", "path", path, "error", err)
		}
	}
	if f.request.MultipartForm != nil {
		_ = f.request.MultipartForm.RemoveAll()
	}
}

// receive parses a multipart request and spools the files named in fields. Unknown file
// fields and repeated files are rejected before anything is written.
func (u Uploads) receive(w http.ResponseWriter, r *http.Request, fields []string) (*spooledForm, error) {
	if u.MaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, u.MaxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation(fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		}
		return nil, apperr.Validation("invalid multipart form")
	}

	form := &spooledForm{request: r, paths: make(map[string]string)}
	if err := checkFileFields(r.MultipartForm.File, fields); err != nil {
		form.Cleanup()
		return nil, err
	}

	for name, headers := range r.MultipartForm.File {
		path, err := u.spool(headers[0])
		if err != nil {
			form.Cleanup()
			return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
		}
		form.paths[name] = path
	}
	return form, nil
}

func checkFileFields(files map[string][]*multipart.FileHeader, allowed []string) error {
	var problems []apperr.FieldError
	for name, headers := range files {
		switch {
		case !slices.Contains(allowed, name):
			problems = append(problems, apperr.FieldError{Field: name, Message: "unexpected file field"})
		case len(headers) > 1:
			problems = append(problems, apperr.FieldError{Field: name, Message: "only one file is accepted"})
		}
	}
	if len(problems) > 0 {
		return apperr.Validation("invalid file upload", problems...)
	}
	return nil
}

func (u Uploads) spool(header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload part: %w", err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(filepath.Base(header.Filename)))
	dst, err := os.CreateTemp(u.Dir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("close spool file: %w", err)
	}
	return dst.Name(), nil
}
