package persistence

import (
	"loom/common"
	"os"
	"sync"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/mysql"
	otgorm "github.com/smacker/opentracing-gorm"
)

var (
	ActiveDataSourceManager *DataSourceManager

	// MigrateFunc is applied to every freshly connected data source,
	// including the replacement built during a runtime switch.
	MigrateFunc func(db *gorm.DB) error

	SwitchDataSourceFunc = SwitchDataSource

	switchLock sync.Mutex
)

type DataSourceManager struct {
	gormDB *gorm.DB

	DatabaseConfig *DatabaseConfig
}

func (m *DataSourceManager) Start() error {
	db, err := connect(m.DatabaseConfig)
	if err != nil {
		return err
	}
	m.gormDB = db
	if os.Getenv("GIN_MODE") != "release" {
		m.gormDB.LogMode(true)
	}
	return nil
}

func (m *DataSourceManager) Stop() {
	if m.gormDB != nil {
		if err := m.gormDB.Close(); err != nil {
			common.Log.Warnf("failed to close DB: %v", err)
		}
		m.gormDB = nil
	}
}

func (m *DataSourceManager) GormDB() *gorm.DB {
	if m.gormDB != nil {
		return m.gormDB.New()
	}
	return nil
}

// SwitchDataSource replaces ActiveDataSourceManager with a manager connected
// to the given target. The replacement is connected, pinged and migrated
// before the previous manager is stopped: a failed switch keeps the old data
// source serving.
func SwitchDataSource(config *DatabaseConfig) error {
	switchLock.Lock()
	defer switchLock.Unlock()

	if config.DriverType == "mysql" {
		if err := PrepareMysqlDatabase(config.DriverArgs); err != nil {
			return err
		}
	}

	next := &DataSourceManager{DatabaseConfig: config}
	if err := next.Start(); err != nil {
		return err
	}
	if MigrateFunc != nil {
		if err := MigrateFunc(next.GormDB()); err != nil {
			next.Stop()
			return err
		}
	}

	last := ActiveDataSourceManager
	ActiveDataSourceManager = next
	if last != nil {
		last.Stop()
	}
	common.Log.Info("active data source switched to " + config.DatabaseName())
	return nil
}

func connect(config *DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(config.DriverType, config.DriverArgs)
	if err != nil {
		return nil, err
	}
	err = db.DB().Ping()
	if err != nil {
		return nil, err
	}
	otgorm.AddGormCallbacks(db)
	return db, nil
}
