package mysql

import (
	"sync"

	dbconfig "github.com/vaultbox/vaultbox/db/config"
	"github.com/vaultbox/vaultbox/db/dao"
	"github.com/vaultbox/vaultbox/db/model"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	"github.com/sirupsen/logrus"
)

// Manager gorm backed db manager
type Manager struct {
	db      *gorm.DB
	config  dbconfig.Config
	initOne sync.Once
	models  []model.Interface
}

// CreateManager create manager
func CreateManager(config dbconfig.Config) (*Manager, error) {
	db, err := gorm.Open("mysql", config.MysqlConnectionInfo+"?charset=utf8&parseTime=True&loc=Local")
	if err != nil {
		return nil, err
	}
	if config.ShowSQL {
		db.LogMode(true)
	}
	manager := &Manager{
		db:      db,
		config:  config,
		initOne: sync.Once{},
	}
	db.SetLogger(manager)
	manager.RegisterTableModel()
	manager.CheckTable()
	logrus.Debug("mysql db driver create")
	return manager, nil
}

// CreateManagerWithDB build a manager around an existing gorm DB, used by tests.
func CreateManagerWithDB(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// CloseManager close manager
func (m *Manager) CloseManager() error {
	return m.db.Close()
}

// Print gorm logger interface
func (m *Manager) Print(v ...interface{}) {
	logrus.Info(v...)
}

// RegisterTableModel register table model
func (m *Manager) RegisterTableModel() {
	m.models = append(m.models, &model.UploadSession{})
}

// CheckTable check and create tables
func (m *Manager) CheckTable() {
	m.initOne.Do(func() {
		for _, md := range m.models {
			if !m.db.HasTable(md) {
				if err := m.db.CreateTable(md).Error; err != nil {
					logrus.Errorf("create table %s error: %v", md.TableName(), err)
				}
			} else {
				if err := m.db.AutoMigrate(md).Error; err != nil {
					logrus.Errorf("auto migrate table %s error: %v", md.TableName(), err)
				}
			}
		}
	})
}

// UploadSessionDao upload session dao
func (m *Manager) UploadSessionDao() dao.UploadSessionDao {
	return &dao.UploadSessionDaoImpl{DB: m.db}
}
