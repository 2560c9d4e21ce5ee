package workflow

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"loom/bizerror"
	"loom/client/ai"
	"loom/idgen"
	"loom/persistence"
	"loom/settings"
	"strings"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	otgorm "github.com/smacker/opentracing-gorm"
	"github.com/sony/sonyflake"
)

var (
	workflowIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	CreateWorkflowFunc = CreateWorkflow
	QueryWorkflowsFunc = QueryWorkflows
	DetailWorkflowFunc = DetailWorkflow
	UpdateWorkflowFunc = UpdateWorkflow
	DeleteWorkflowFunc = DeleteWorkflow
)

// Step carries whatever shape the decomposition model produced
// (typically name, description, type and required inputs).
type Step map[string]interface{}

// StepList is persisted as a JSON text column.
type StepList []Step

func (l StepList) Value() (driver.Value, error) {
	if l == nil {
		l = StepList{}
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *StepList) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*l = StepList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported steps column type %T", value)
	}
	if len(data) == 0 {
		*l = StepList{}
		return nil
	}
	steps := StepList{}
	if err := json.Unmarshal(data, &steps); err != nil {
		return err
	}
	*l = steps
	return nil
}

type Workflow struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	Name        string   `json:"name" gorm:"size:255"`
	Description string   `json:"description" gorm:"type:text"`
	Steps       StepList `json:"steps" gorm:"type:text"`

	CreateTime types.Timestamp `json:"createTime" sql:"type:DATETIME(6) NOT NULL"`
	UpdateTime types.Timestamp `json:"updateTime" sql:"type:DATETIME(6) NOT NULL"`
}

type WorkflowCreation struct {
	Name        string `json:"name"`
	Description string `json:"description" binding:"required"`
}

type WorkflowUpdating struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Steps       StepList `json:"steps"`
}

// CreateWorkflow decomposes the description into steps and persists the
// record. Decomposition failure is not fatal: the workflow is stored with an
// empty step list.
func CreateWorkflow(ctx context.Context, creation WorkflowCreation) (*Workflow, error) {
	if strings.TrimSpace(creation.Description) == "" {
		return nil, &bizerror.ErrBadParam{Cause: errors.New("workflow description must not be empty")}
	}

	name := strings.TrimSpace(creation.Name)
	if name == "" {
		name = fmt.Sprintf("New Workflow %d", time.Now().UnixNano()/int64(time.Millisecond))
	}

	steps := StepList{}
	for _, s := range ai.DecomposeFunc(ctx, creation.Description, settings.LoadAIConfigFunc()) {
		steps = append(steps, Step(s))
	}

	now := types.CurrentTimestamp()
	r := Workflow{ID: idgen.NextID(workflowIdWorker),
		Name: name, Description: creation.Description, Steps: steps,
		CreateTime: now, UpdateTime: now}

	detail := Workflow{}
	db := otgorm.SetSpanToGorm(ctx, persistence.ActiveDataSourceManager.GormDB())
	txErr := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&r).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", r.ID).First(&detail).Error
	})
	if txErr != nil {
		return nil, txErr
	}
	return &detail, nil
}

func QueryWorkflows() ([]Workflow, error) {
	workflows := []Workflow{}
	db := persistence.ActiveDataSourceManager.GormDB()
	if err := db.Order("create_time DESC").Find(&workflows).Error; err != nil {
		return nil, err
	}
	return workflows, nil
}

func DetailWorkflow(id types.ID) (*Workflow, error) {
	detail := Workflow{}
	db := persistence.ActiveDataSourceManager.GormDB()
	if err := db.Where("id = ?", id).First(&detail).Error; err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateWorkflow overwrites name, description and steps wholesale.
func UpdateWorkflow(id types.ID, updating WorkflowUpdating) (*Workflow, error) {
	detail := Workflow{}
	txErr := persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		steps := updating.Steps
		if steps == nil {
			steps = StepList{}
		}
		if err := tx.Model(&Workflow{}).Where("id = ?", id).Updates(map[string]interface{}{
			"name":        updating.Name,
			"description": updating.Description,
			"steps":       steps,
			"update_time": types.CurrentTimestamp(),
		}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&detail).Error
	})
	if txErr != nil {
		return nil, txErr
	}
	return &detail, nil
}

func DeleteWorkflow(id types.ID) error {
	db := persistence.ActiveDataSourceManager.GormDB()
	result := db.Delete(Workflow{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return bizerror.ErrNotFound
	}
	return nil
}
