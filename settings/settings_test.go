package settings_test

import (
	"errors"
	"loom/persistence"
	"loom/settings"
	"loom/testinfra"
	"os"
	"testing"

	. "github.com/onsi/gomega"
)

func setup(t *testing.T, testDatabase **testinfra.TestDatabase) {
	db := testinfra.StartMysqlTestDatabase("loom")
	*testDatabase = db
	Expect(db.DS.GormDB().AutoMigrate(&settings.Setting{}).Error).To(BeNil())

	persistence.ActiveDataSourceManager = db.DS
	persistence.SwitchDataSourceFunc = func(config *persistence.DatabaseConfig) error {
		return errors.New("unexpected data source switch")
	}
}

func teardown(t *testing.T, testDatabase *testinfra.TestDatabase) {
	persistence.SwitchDataSourceFunc = persistence.SwitchDataSource
	if testDatabase != nil {
		testinfra.StopMysqlTestDatabase(testDatabase)
	}
}

func TestQuerySettings(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should fold all rows into a mapping", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		r, err := settings.QuerySettings()
		Expect(err).To(BeNil())
		Expect(r).To(Equal(map[string]string{}))

		Expect(settings.UpdateSettings(map[string]string{"apiKey": "sk-1", "theme": "dark"})).To(BeNil())

		r, err = settings.QuerySettings()
		Expect(err).To(BeNil())
		Expect(r).To(Equal(map[string]string{"apiKey": "sk-1", "theme": "dark"}))
	})
}

func TestUpdateSettings(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should upsert every supplied key, recognized or not", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		Expect(settings.UpdateSettings(map[string]string{"apiKey": "sk-1", "customKey": "v1"})).To(BeNil())
		Expect(settings.UpdateSettings(map[string]string{"customKey": "v2", "another": "v3"})).To(BeNil())

		r, err := settings.QuerySettings()
		Expect(err).To(BeNil())
		Expect(r).To(Equal(map[string]string{"apiKey": "sk-1", "customKey": "v2", "another": "v3"}))
	})

	t.Run("should switch data source when all connection fields are present", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		var config1 *persistence.DatabaseConfig
		persistence.SwitchDataSourceFunc = func(config *persistence.DatabaseConfig) error {
			config1 = config
			return nil
		}

		Expect(settings.UpdateSettings(map[string]string{
			"dbHost": "db.internal", "dbUser": "app", "dbPassword": "secret", "dbName": "workflows"})).To(BeNil())

		Expect(config1).ToNot(BeNil())
		Expect(config1.DriverType).To(Equal("mysql"))
		Expect(config1.DriverArgs).To(Equal(
			"app:secret@(db.internal:3306)/workflows?charset=utf8mb4&parseTime=True&loc=Local&timeout=5s"))
		Expect(config1.DatabaseName()).To(Equal("workflows"))
	})

	t.Run("should not switch when connection fields are incomplete", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		Expect(settings.UpdateSettings(map[string]string{"dbHost": "db.internal"})).To(BeNil())

		r, err := settings.QuerySettings()
		Expect(err).To(BeNil())
		Expect(r).To(Equal(map[string]string{"dbHost": "db.internal"}))
	})

	t.Run("should fail whole update when switch fails, keeping settings unchanged", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		persistence.SwitchDataSourceFunc = func(config *persistence.DatabaseConfig) error {
			return errors.New("database connection failed")
		}

		err := settings.UpdateSettings(map[string]string{
			"dbHost": "nowhere", "dbUser": "app", "dbPassword": "secret", "dbName": "workflows"})
		Expect(err).ToNot(BeNil())

		r, err := settings.QuerySettings()
		Expect(err).To(BeNil())
		Expect(r).To(Equal(map[string]string{}))
	})
}

func TestLoadAIConfig(t *testing.T) {
	RegisterTestingT(t)
	var testDatabase *testinfra.TestDatabase

	t.Run("should overlay settings rows on environment defaults", func(t *testing.T) {
		defer teardown(t, testDatabase)
		setup(t, &testDatabase)

		os.Setenv("AI_API_URL", "http://env.test/chat")
		os.Setenv("AI_API_KEY", "env-key")
		os.Setenv("AI_MODEL", "env-model")
		defer func() {
			os.Unsetenv("AI_API_URL")
			os.Unsetenv("AI_API_KEY")
			os.Unsetenv("AI_MODEL")
		}()

		// flushes the config cache as well
		Expect(settings.UpdateSettings(map[string]string{"apiKey": "table-key"})).To(BeNil())

		config := settings.LoadAIConfig()
		Expect(config.APIKey).To(Equal("table-key"))
		Expect(config.APIURL).To(Equal("http://env.test/chat"))
		Expect(config.Model).To(Equal("env-model"))

		// memoized until the next settings update
		db := persistence.ActiveDataSourceManager.GormDB()
		Expect(db.Exec("UPDATE settings SET value = 'changed-key' WHERE `key` = 'apiKey'").Error).To(BeNil())
		Expect(settings.LoadAIConfig().APIKey).To(Equal("table-key"))

		Expect(settings.UpdateSettings(map[string]string{"aiModel": "table-model"})).To(BeNil())
		config = settings.LoadAIConfig()
		Expect(config.APIKey).To(Equal("changed-key"))
		Expect(config.Model).To(Equal("table-model"))
	})
}
