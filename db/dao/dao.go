package dao

import (
	"errors"
	"time"

	"github.com/vaultbox/vaultbox/db/model"
)

// ErrSessionNotFound returned when no upload session exists for the given id.
var ErrSessionNotFound = errors.New("upload session not found")

// Dao base dao interface
type Dao interface {
	AddModel(model.Interface) error
	UpdateModel(model.Interface) error
}

// UploadSessionDao upload session dao interface
type UploadSessionDao interface {
	Dao
	GetByID(id string) (*model.UploadSession, error)
	DeleteByID(id string) error
	ListExpired(now time.Time) ([]*model.UploadSession, error)
}
