package knowledge

import (
	"errors"
	"loom/bizerror"
	"net/http"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
)

var (
	PathKnowledge = "/api/knowledge"
)

func RegisterKnowledgeRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathKnowledge, middleWares...)
	g.POST("/upload", handleUploadKnowledgeFile)
	g.GET("", handleQueryKnowledgeFiles)
	g.DELETE(":id", handleDeleteKnowledgeFile)
}

func handleUploadKnowledgeFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: errors.New("no file provided")})
	}
	record, err := SaveUploadedFileFunc(fh)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, record)
}

func handleQueryKnowledgeFiles(c *gin.Context) {
	record, err := QueryKnowledgeFilesFunc()
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleDeleteKnowledgeFile(c *gin.Context) {
	parsedId, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: errors.New("invalid id '" + c.Param("id") + "'")})
	}

	if err := DeleteKnowledgeFileFunc(parsedId); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "file deleted"})
}
