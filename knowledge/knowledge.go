package knowledge

import (
	"fmt"
	"io"
	"loom/common"
	"loom/idgen"
	"loom/misc"
	"loom/persistence"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sony/sonyflake"
)

var (
	knowledgeIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	SaveUploadedFileFunc    = SaveUploadedFile
	QueryKnowledgeFilesFunc = QueryKnowledgeFiles
	DeleteKnowledgeFileFunc = DeleteKnowledgeFile

	// UploadDir is created on demand on the first upload.
	UploadDir = "uploads"
)

type KnowledgeFile struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	Name       string `json:"name" gorm:"size:255"`
	StoredName string `json:"storedName" gorm:"size:255"`
	Size       int64  `json:"size"`
	Path       string `json:"path" gorm:"size:512"`

	UploadTime types.Timestamp `json:"uploadTime" sql:"type:DATETIME(6) NOT NULL"`
}

// FileSummary is the wire shape of a knowledge file: size is human readable.
type FileSummary struct {
	ID         types.ID `json:"id"`
	Name       string   `json:"name"`
	Size       string   `json:"size"`
	UploadTime string   `json:"uploadTime"`
}

// SaveUploadedFile writes the payload under UploadDir as
// "<upload-millis>-<original-name>" and records its metadata. The written
// file is removed again when the metadata insert fails.
func SaveUploadedFile(fh *multipart.FileHeader) (*FileSummary, error) {
	if err := os.MkdirAll(UploadDir, 0755); err != nil {
		return nil, err
	}

	originalName := filepath.Base(fh.Filename)
	storedName := fmt.Sprintf("%d-%s", time.Now().UnixNano()/int64(time.Millisecond), originalName)
	path := filepath.Join(UploadDir, storedName)

	size, err := writeFile(fh, path)
	if err != nil {
		return nil, err
	}

	now := types.CurrentTimestamp()
	r := KnowledgeFile{ID: idgen.NextID(knowledgeIdWorker),
		Name: originalName, StoredName: storedName, Size: size, Path: path, UploadTime: now}
	txErr := persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		return tx.Create(&r).Error
	})
	if txErr != nil {
		if removeErr := os.Remove(path); removeErr != nil {
			common.Log.Warnf("failed to clean up uploaded file %s: %v", path, removeErr)
		}
		return nil, txErr
	}

	return &FileSummary{ID: r.ID, Name: r.Name, Size: misc.FormatFileSize(r.Size),
		UploadTime: now.Time().Format(time.RFC3339)}, nil
}

func QueryKnowledgeFiles() ([]FileSummary, error) {
	records := []KnowledgeFile{}
	db := persistence.ActiveDataSourceManager.GormDB()
	if err := db.Order("upload_time DESC").Find(&records).Error; err != nil {
		return nil, err
	}

	summaries := make([]FileSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, FileSummary{ID: r.ID, Name: r.Name,
			Size: misc.FormatFileSize(r.Size), UploadTime: r.UploadTime.Time().Format("2006-01-02")})
	}
	return summaries, nil
}

// DeleteKnowledgeFile removes the record, then unlinks the physical file.
// A physical file that is already gone is logged and tolerated: orphaned
// metadata must not be left behind by a lost file.
func DeleteKnowledgeFile(id types.ID) error {
	r := KnowledgeFile{}
	txErr := persistence.ActiveDataSourceManager.GormDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
			return err
		}
		return tx.Delete(KnowledgeFile{}, "id = ?", id).Error
	})
	if txErr != nil {
		return txErr
	}

	if err := os.Remove(r.Path); err != nil {
		if os.IsNotExist(err) {
			common.Log.Warnf("physical file of knowledge file %s already absent: %s", id, r.Path)
		} else {
			common.Log.Warnf("failed to remove physical file %s: %v", r.Path, err)
		}
	}
	return nil
}

func writeFile(fh *multipart.FileHeader, path string) (int64, error) {
	src, err := fh.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	return io.Copy(dst, src)
}
