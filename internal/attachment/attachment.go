// Package attachment accepts uploaded files and stores them, producing the
// name/size/reference descriptor kept on a submission.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

var (
	ErrFileType     = errors.New("attachment: file type not allowed")
	ErrFileTooLarge = errors.New("attachment: file too large")
)

const MaxDMAXBytes = 10 * 1024 * 1024

type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Descriptor is what a submission keeps about its attachment. Name is the
// display name; Key is the unique storage key behind Reference.
type Descriptor struct {
	Name      string `json:"name"`
	SizeLabel string `json:"sizeLabel"`
	Reference string `json:"reference"`
	Key       string `json:"key"`
}

// Policy restricts what a submission path accepts. A zero Policy accepts
// anything.
type Policy struct {
	AllowedTypes []string
	MaxBytes     int64
}

var DMAXPolicy = Policy{
	AllowedTypes: []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	},
	MaxBytes: MaxDMAXBytes,
}

func (p Policy) Check(f File) error {
	if len(p.AllowedTypes) > 0 {
		contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(f.ContentType, ";", 2)[0]))
		allowed := false
		for _, t := range p.AllowedTypes {
			if t == contentType {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %q", ErrFileType, f.ContentType)
		}
	}
	if p.MaxBytes > 0 && f.Size > p.MaxBytes {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, f.Size)
	}
	return nil
}

// Storage persists an object and returns a reference to it.
type Storage interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

type Service struct {
	storage Storage
}

func NewService(storage Storage) *Service {
	return &Service{storage: storage}
}

// Accept checks f against policy and stores it under ObjectKey(owner,
// displayName). An empty displayName falls back to the uploaded file's name.
// owner must be unique per submission, normally the new record id, so a
// resubmission never replaces an earlier record's file.
func (s *Service) Accept(ctx context.Context, f File, policy Policy, owner, displayName string) (Descriptor, error) {
	if err := policy.Check(f); err != nil {
		return Descriptor{}, err
	}
	name := DisplayName(f, displayName)
	key := ObjectKey(owner, name)
	body := f.Body
	if body == nil {
		body = strings.NewReader("")
	}
	ref, err := s.storage.Put(ctx, key, f.ContentType, body, f.Size)
	if err != nil {
		return Descriptor{}, fmt.Errorf("store attachment %s: %w", name, err)
	}
	return Descriptor{Name: name, SizeLabel: SizeLabel(f.Size), Reference: ref, Key: key}, nil
}

// Discard removes an attachment whose submission was not recorded.
func (s *Service) Discard(ctx context.Context, desc Descriptor) error {
	if desc.Key == "" {
		return nil
	}
	if err := s.storage.Delete(ctx, desc.Key); err != nil {
		return fmt.Errorf("discard attachment %s: %w", desc.Key, err)
	}
	return nil
}

func DisplayName(f File, displayName string) string {
	if displayName != "" {
		return filepath.Base(displayName)
	}
	return filepath.Base(f.Name)
}

// ObjectKey is <owner>_<name>, flat so it is a valid file and object name.
func ObjectKey(owner, name string) string {
	if owner == "" {
		return name
	}
	return owner + "_" + name
}

func SizeLabel(size int64) string {
	return fmt.Sprintf("%.2f MB", float64(size)/1024/1024)
}

// DMAXObjectName is DMAX_<first name>_<month>_<year><original extension>.
func DMAXObjectName(userName, month string, year int, original string) string {
	first := "User"
	if fields := strings.Fields(userName); len(fields) > 0 {
		first = fields[0]
	}
	return fmt.Sprintf("DMAX_%s_%s_%d%s", first, month, year, strings.ToLower(filepath.Ext(original)))
}
