package dao

import (
	"time"

	"github.com/jinzhu/gorm"
	"github.com/vaultbox/vaultbox/db/model"
)

// UploadSessionDaoImpl upload session dao
type UploadSessionDaoImpl struct {
	DB *gorm.DB
}

// AddModel add upload session
func (u *UploadSessionDaoImpl) AddModel(mo model.Interface) error {
	session := mo.(*model.UploadSession)
	var old model.UploadSession
	if err := u.DB.Where("id = ?", session.ID).Find(&old).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return u.DB.Create(session).Error
		}
		return err
	}
	return u.DB.Save(session).Error
}

// UpdateModel update upload session
func (u *UploadSessionDaoImpl) UpdateModel(mo model.Interface) error {
	session := mo.(*model.UploadSession)
	return u.DB.Save(session).Error
}

// GetByID get upload session by id
func (u *UploadSessionDaoImpl) GetByID(id string) (*model.UploadSession, error) {
	var session model.UploadSession
	if err := u.DB.Where("id = ?", id).First(&session).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

// DeleteByID delete upload session by id
func (u *UploadSessionDaoImpl) DeleteByID(id string) error {
	return u.DB.Where("id = ?", id).Delete(&model.UploadSession{}).Error
}

// ListExpired list sessions whose TTL passed and that never completed.
// Sessions already marked expired come back too, the janitor deletes their
// rows on the sweep after the one that marked them.
func (u *UploadSessionDaoImpl) ListExpired(now time.Time) ([]*model.UploadSession, error) {
	var sessions []*model.UploadSession
	if err := u.DB.Where("expires_at < ? AND status <> ?",
		now, model.SessionStatusCompleted).
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
