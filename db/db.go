package db

import (
	"fmt"

	dbconfig "github.com/vaultbox/vaultbox/db/config"
	"github.com/vaultbox/vaultbox/db/dao"
	"github.com/vaultbox/vaultbox/db/mysql"

	"github.com/sirupsen/logrus"
)

// Manager db manager
type Manager interface {
	CloseManager() error
	UploadSessionDao() dao.UploadSessionDao
}

var defaultManager Manager

var errNotInit = fmt.Errorf("db manager is not initialized")

// CreateManager create the default manager for the given config
func CreateManager(config dbconfig.Config) error {
	var err error
	switch config.DBType {
	case "mysql":
		defaultManager, err = mysql.CreateManager(config)
	case "memory":
		defaultManager = newMemoryManager()
	default:
		err = fmt.Errorf("db type %s is not supported", config.DBType)
	}
	if err != nil {
		return err
	}
	logrus.Debugf("db manager created, type %s", config.DBType)
	return nil
}

// CloseManager close the default manager
func CloseManager() error {
	if defaultManager == nil {
		return errNotInit
	}
	return defaultManager.CloseManager()
}

// GetManager get the default manager
func GetManager() Manager {
	return defaultManager
}

type memoryManager struct {
	sessionDao *dao.MemoryUploadSessionDao
}

func newMemoryManager() *memoryManager {
	return &memoryManager{sessionDao: dao.NewMemoryUploadSessionDao()}
}

func (m *memoryManager) CloseManager() error { return nil }

func (m *memoryManager) UploadSessionDao() dao.UploadSessionDao {
	return m.sessionDao
}
