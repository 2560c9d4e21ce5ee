package settings

import (
	"loom/bizerror"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathSettings = "/api/settings"
)

func RegisterSettingsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathSettings, middleWares...)
	g.GET("", handleQuerySettings)
	g.PUT("", handleUpdateSettings)
}

func handleQuerySettings(c *gin.Context) {
	record, err := QuerySettingsFunc()
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleUpdateSettings(c *gin.Context) {
	values := map[string]string{}
	err := c.ShouldBindBodyWith(&values, binding.JSON)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	if err := UpdateSettingsFunc(values); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "settings updated"})
}
