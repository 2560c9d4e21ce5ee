package knowledge_test

import (
	"bytes"
	"errors"
	"loom/bizerror"
	"loom/knowledge"
	"loom/testinfra"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fundwit/go-commons/types"
	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"
)

func multipartFileRequest(t *testing.T, url, field, filename, content string) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	Expect(err).To(BeNil())
	_, err = part.Write([]byte(content))
	Expect(err).To(BeNil())
	Expect(writer.Close()).To(BeNil())

	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadKnowledgeFileAPI(t *testing.T) {
	RegisterTestingT(t)

	router := gin.Default()
	router.Use(bizerror.ErrorHandling())
	knowledge.RegisterKnowledgeRestAPI(router)

	t.Run("should reject request without file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, knowledge.PathKnowledge+"/upload", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param", "message":"no file provided", "data":null}`))
	})

	t.Run("should be able to handle error", func(t *testing.T) {
		knowledge.SaveUploadedFileFunc = func(fh *multipart.FileHeader) (*knowledge.FileSummary, error) {
			return nil, errors.New("some error")
		}
		req := multipartFileRequest(t, knowledge.PathKnowledge+"/upload", "file", "spec.pdf", "content")
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusInternalServerError))
		Expect(body).To(MatchJSON(`{"code":"common.internal_server_error", "message":"internal server error", "data":null}`))
	})

	t.Run("should upload file successfully", func(t *testing.T) {
		var name1 string
		knowledge.SaveUploadedFileFunc = func(fh *multipart.FileHeader) (*knowledge.FileSummary, error) {
			name1 = fh.Filename
			return &knowledge.FileSummary{ID: 123, Name: fh.Filename, Size: "2.0 KB", UploadTime: "2021-06-01T10:00:00Z"}, nil
		}
		req := multipartFileRequest(t, knowledge.PathKnowledge+"/upload", "file", "spec.pdf", "content")
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusCreated))
		Expect(body).To(MatchJSON(`{"id":"123", "name":"spec.pdf", "size":"2.0 KB", "uploadTime":"2021-06-01T10:00:00Z"}`))
		Expect(name1).To(Equal("spec.pdf"))
	})
}

func TestQueryKnowledgeFilesAPI(t *testing.T) {
	RegisterTestingT(t)

	router := gin.Default()
	router.Use(bizerror.ErrorHandling())
	knowledge.RegisterKnowledgeRestAPI(router)

	t.Run("should be able to handle error", func(t *testing.T) {
		knowledge.QueryKnowledgeFilesFunc = func() ([]knowledge.FileSummary, error) {
			return nil, errors.New("some error")
		}
		req := httptest.NewRequest(http.MethodGet, knowledge.PathKnowledge, nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusInternalServerError))
		Expect(body).To(MatchJSON(`{"code":"common.internal_server_error", "message":"internal server error", "data":null}`))
	})

	t.Run("should return file summaries", func(t *testing.T) {
		knowledge.QueryKnowledgeFilesFunc = func() ([]knowledge.FileSummary, error) {
			return []knowledge.FileSummary{{ID: 7, Name: "faq.md", Size: "1.5 KB", UploadTime: "2021-06-01"}}, nil
		}
		req := httptest.NewRequest(http.MethodGet, knowledge.PathKnowledge, nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`[{"id":"7", "name":"faq.md", "size":"1.5 KB", "uploadTime":"2021-06-01"}]`))
	})
}

func TestDeleteKnowledgeFileAPI(t *testing.T) {
	RegisterTestingT(t)

	router := gin.Default()
	router.Use(bizerror.ErrorHandling())
	knowledge.RegisterKnowledgeRestAPI(router)

	t.Run("should validate id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, knowledge.PathKnowledge+"/zzz", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body).To(MatchJSON(`{"code":"common.bad_param", "message":"invalid id 'zzz'", "data":null}`))
	})

	t.Run("should map record not found to 404", func(t *testing.T) {
		knowledge.DeleteKnowledgeFileFunc = func(id types.ID) error {
			return bizerror.ErrNotFound
		}
		req := httptest.NewRequest(http.MethodDelete, knowledge.PathKnowledge+"/7", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusNotFound))
		Expect(body).To(MatchJSON(`{"code":"common.record_not_found", "message":"record not found", "data":null}`))
	})

	t.Run("should delete file", func(t *testing.T) {
		var reqId types.ID
		knowledge.DeleteKnowledgeFileFunc = func(id types.ID) error {
			reqId = id
			return nil
		}
		req := httptest.NewRequest(http.MethodDelete, knowledge.PathKnowledge+"/7", nil)
		status, body, _ := testinfra.ExecuteRequest(req, router)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"message":"file deleted"}`))
		Expect(reqId).To(Equal(types.ID(7)))
	})
}
