package main

import (
	"log"
	"loom/bizerror"
	"loom/common"
	"loom/domain/workflow"
	"loom/infra/tracing"
	"loom/knowledge"
	"loom/persistence"
	"loom/servehttp"
	"loom/settings"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

func main() {
	log.Println("service start")

	dbConfig, err := persistence.ParseDatabaseConfigFromEnv()
	if err != nil {
		log.Fatalf("parse database config failed %v\n", err)
	}

	// create database (no conflict)
	if dbConfig.DriverType == "mysql" {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			log.Fatalf("failed to prepare database %v\n", err)
		}
	}

	persistence.MigrateFunc = func(db *gorm.DB) error {
		return db.AutoMigrate(&workflow.Workflow{}, &knowledge.KnowledgeFile{}, &settings.Setting{}).Error
	}

	// connect database
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		log.Fatalf("database connection failed %v\n", err)
	}
	persistence.ActiveDataSourceManager = ds
	defer func() {
		persistence.ActiveDataSourceManager.Stop()
	}()

	if err := persistence.MigrateFunc(ds.GormDB()); err != nil {
		log.Fatalf("database migration failed %v\n", err)
	}

	tracingCloser, err := tracing.InitTracer(common.GetServiceName())
	if err != nil {
		log.Printf("tracing disabled: %v\n", err)
	} else {
		defer tracingCloser.Close()
	}
	common.HttpClient.Transport = &tracing.TracingTransport{}

	engine := gin.Default()
	engine.Use(cors.Default(), bizerror.ErrorHandling(), tracing.TracingIngress())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "loom")
	})

	workflow.RegisterWorkflowsRestAPI(engine)
	knowledge.RegisterKnowledgeRestAPI(engine)
	settings.RegisterSettingsRestAPI(engine)

	servehttp.StartHTTPServer(engine)
}
