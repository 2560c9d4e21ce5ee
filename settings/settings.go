package settings

import (
	"loom/client/ai"
	"loom/common"
	"loom/persistence"
	"os"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/patrickmn/go-cache"
)

// recognized keys; any other key is stored verbatim
const (
	KeyDBHost     = "dbHost"
	KeyDBUser     = "dbUser"
	KeyDBPassword = "dbPassword"
	KeyDBName     = "dbName"

	KeyAPIKey  = "apiKey"
	KeyAPIURL  = "apiUrl"
	KeyAIModel = "aiModel"
)

var (
	QuerySettingsFunc  = QuerySettings
	UpdateSettingsFunc = UpdateSettings
	LoadAIConfigFunc   = LoadAIConfig

	aiConfigCache    = cache.New(30*time.Second, 1*time.Minute)
	aiConfigCacheKey = "ai-config"
)

type Setting struct {
	Key   string `json:"key" gorm:"primary_key;size:190"`
	Value string `json:"value" gorm:"size:2000"`
}

// QuerySettings folds all setting rows into a key-value mapping.
func QuerySettings() (map[string]string, error) {
	records := []Setting{}
	db := persistence.ActiveDataSourceManager.GormDB()
	if err := db.Find(&records).Error; err != nil {
		return nil, err
	}

	result := map[string]string{}
	for _, r := range records {
		result[r.Key] = r.Value
	}
	return result, nil
}

// UpdateSettings applies the supplied mapping. When all four database
// connection keys are present the active data source is switched first
// (verified replacement, old pool kept on failure); every supplied key is
// then upserted, recognized or not.
func UpdateSettings(values map[string]string) error {
	host, user := values[KeyDBHost], values[KeyDBUser]
	password, database := values[KeyDBPassword], values[KeyDBName]
	if host != "" && user != "" && password != "" && database != "" {
		config := persistence.MysqlDatabaseConfig(host, user, password, database)
		if err := persistence.SwitchDataSourceFunc(config); err != nil {
			return err
		}
	}

	err := persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			r := Setting{}
			if err := tx.Where(Setting{Key: key}).
				Assign(Setting{Key: key, Value: value}).
				FirstOrCreate(&r).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	aiConfigCache.Flush()
	return nil
}

// LoadAIConfig builds the decomposition client config from the settings
// table over environment defaults. The result is memoized briefly so
// workflow creation does not hit the settings table on every request.
func LoadAIConfig() ai.ClientConfig {
	if cached, found := aiConfigCache.Get(aiConfigCacheKey); found {
		return cached.(ai.ClientConfig)
	}

	config := ai.ClientConfig{
		APIURL: os.Getenv("AI_API_URL"),
		APIKey: os.Getenv("AI_API_KEY"),
		Model:  os.Getenv("AI_MODEL"),
	}
	values, err := QuerySettings()
	if err != nil {
		common.Log.Warnf("failed to load AI settings, falling back to environment: %v", err)
		return config
	}
	if v := values[KeyAPIURL]; v != "" {
		config.APIURL = v
	}
	if v := values[KeyAPIKey]; v != "" {
		config.APIKey = v
	}
	if v := values[KeyAIModel]; v != "" {
		config.Model = v
	}

	aiConfigCache.Set(aiConfigCacheKey, config, cache.DefaultExpiration)
	return config
}
