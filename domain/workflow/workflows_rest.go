package workflow

import (
	"errors"
	"loom/bizerror"
	"net/http"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

var (
	PathWorkflows = "/api/workflows"
)

func RegisterWorkflowsRestAPI(r *gin.Engine, middleWares ...gin.HandlerFunc) {
	g := r.Group(PathWorkflows, middleWares...)
	g.GET("", handleQueryWorkflows)
	g.POST("", handleCreateWorkflow)
	g.GET(":id", handleDetailWorkflow)
	g.PUT(":id", handleUpdateWorkflow)
	g.DELETE(":id", handleDeleteWorkflow)
}

func handleQueryWorkflows(c *gin.Context) {
	record, err := QueryWorkflowsFunc()
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleCreateWorkflow(c *gin.Context) {
	creation := WorkflowCreation{}
	err := c.ShouldBindBodyWith(&creation, binding.JSON)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	record, err := CreateWorkflowFunc(c.Request.Context(), creation)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusCreated, record)
}

func handleDetailWorkflow(c *gin.Context) {
	record, err := DetailWorkflowFunc(parseWorkflowId(c))
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleUpdateWorkflow(c *gin.Context) {
	id := parseWorkflowId(c)
	updating := WorkflowUpdating{}
	err := c.ShouldBindBodyWith(&updating, binding.JSON)
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: err})
	}
	record, err := UpdateWorkflowFunc(id, updating)
	if err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, record)
}

func handleDeleteWorkflow(c *gin.Context) {
	if err := DeleteWorkflowFunc(parseWorkflowId(c)); err != nil {
		panic(err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "workflow deleted"})
}

func parseWorkflowId(c *gin.Context) types.ID {
	parsedId, err := types.ParseID(c.Param("id"))
	if err != nil {
		panic(&bizerror.ErrBadParam{Cause: errors.New("invalid id '" + c.Param("id") + "'")})
	}
	return parsedId
}
