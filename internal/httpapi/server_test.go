package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsragd/internal/extract"
	"github.com/fyrsmithlabs/newsragd/internal/ingest"
	"github.com/fyrsmithlabs/newsragd/internal/rag"
	"github.com/fyrsmithlabs/newsragd/internal/records"
)

type fakePipeline struct {
	result ingest.Result
	err    error
	rec    records.Record
	calls  int
}

func (p *fakePipeline) IngestDocument(_ context.Context, rec records.Record) (ingest.Result, error) {
	p.calls++
	p.rec = rec
	return p.result, p.err
}

type fakeAnswerer struct {
	answer   string
	err      error
	question string
}

func (a *fakeAnswerer) Answer(_ context.Context, question string) (string, error) {
	a.question = question
	return a.answer, a.err
}

type fakeExtractor struct {
	text string
	err  error
	data []byte
}

func (e *fakeExtractor) Extract(_ context.Context, data []byte) (string, error) {
	e.data = data
	return e.text, e.err
}

func newTestServer(t *testing.T, pipeline *fakePipeline, answerer *fakeAnswerer, extractor *fakeExtractor) *Server {
	t.Helper()
	if pipeline == nil {
		pipeline = &fakePipeline{}
	}
	if answerer == nil {
		answerer = &fakeAnswerer{}
	}
	if extractor == nil {
		extractor = &fakeExtractor{}
	}
	srv, err := NewServer(pipeline, answerer, extractor, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv
}

func doJSON(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func doUpload(t *testing.T, srv *Server, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload_pdf", &buf)
	req.Header.Set(echoContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(nil, &fakeAnswerer{}, &fakeExtractor{}, zap.NewNop(), nil)
	assert.Error(t, err)

	_, err = NewServer(&fakePipeline{}, &fakeAnswerer{}, &fakeExtractor{}, nil, nil)
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	rec := doJSON(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestHandleAsk(t *testing.T) {
	t.Run("answers", func(t *testing.T) {
		answerer := &fakeAnswerer{answer: "the economy grew"}
		srv := newTestServer(t, nil, answerer, nil)

		rec := doJSON(srv, http.MethodPost, "/ask", `{"question":"how is the economy?"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "the economy grew", decodeBody(t, rec)["answer"])
		assert.Equal(t, "how is the economy?", answerer.question)
	})

	t.Run("missing question", func(t *testing.T) {
		srv := newTestServer(t, nil, nil, nil)

		rec := doJSON(srv, http.MethodPost, "/ask", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNoQuestion, decodeBody(t, rec)["error"])
	})

	t.Run("blank question", func(t *testing.T) {
		srv := newTestServer(t, nil, nil, nil)

		rec := doJSON(srv, http.MethodPost, "/ask", `{"question":"   "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := newTestServer(t, nil, nil, nil)

		rec := doJSON(srv, http.MethodPost, "/ask", `{not json`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("service unavailable", func(t *testing.T) {
		answerer := &fakeAnswerer{err: rag.ErrUnavailable}
		srv := newTestServer(t, nil, answerer, nil)

		rec := doJSON(srv, http.MethodPost, "/ask", `{"question":"q?"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, msgUnavailable, decodeBody(t, rec)["error"])
	})

	t.Run("generation failure", func(t *testing.T) {
		answerer := &fakeAnswerer{err: rag.ErrGeneration}
		srv := newTestServer(t, nil, answerer, nil)

		rec := doJSON(srv, http.MethodPost, "/ask", `{"question":"q?"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, msgGenerateFailed, decodeBody(t, rec)["error"])
	})
}

func TestHandleUploadPDF(t *testing.T) {
	pdfBytes := []byte("%PDF-1.4 fake content")

	t.Run("processes upload", func(t *testing.T) {
		pipeline := &fakePipeline{result: ingest.Result{ID: "rec-1"}}
		extractor := &fakeExtractor{text: "extracted text"}
		srv := newTestServer(t, pipeline, nil, extractor)

		rec := doUpload(t, srv, "pdf_file", "annual_report-2024.pdf", pdfBytes)
		assert.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, msgUploadOK, body["message"])
		assert.Equal(t, "rec-1", body["news_id"])

		assert.Equal(t, pdfBytes, extractor.data)
		assert.Equal(t, "Annual Report 2024", pipeline.rec.Title)
		assert.Equal(t, "file_upload://annual_report-2024.pdf", pipeline.rec.URL)
		assert.Equal(t, "PDF Upload", pipeline.rec.Source)
		assert.Equal(t, "extracted text", pipeline.rec.Content)
		assert.Equal(t, ingest.ContentHash(pdfBytes), pipeline.rec.ContentHash,
			"hash covers the raw bytes, not the extracted text")
		assert.False(t, pipeline.rec.PublishedDate.IsZero())
	})

	t.Run("missing file field", func(t *testing.T) {
		srv := newTestServer(t, nil, nil, nil)

		rec := doUpload(t, srv, "", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNoFile, decodeBody(t, rec)["error"])
	})

	t.Run("wrong extension", func(t *testing.T) {
		pipeline := &fakePipeline{}
		srv := newTestServer(t, pipeline, nil, nil)

		rec := doUpload(t, srv, "pdf_file", "notes.txt", pdfBytes)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNotPDF, decodeBody(t, rec)["error"])
		assert.Zero(t, pipeline.calls)
	})

	t.Run("no extractable text", func(t *testing.T) {
		pipeline := &fakePipeline{}
		extractor := &fakeExtractor{err: extract.ErrEmptyDocument}
		srv := newTestServer(t, pipeline, nil, extractor)

		rec := doUpload(t, srv, "pdf_file", "scan.pdf", pdfBytes)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgNoText, decodeBody(t, rec)["error"])
		assert.Zero(t, pipeline.calls, "nothing is saved for an empty document")
	})

	t.Run("unreadable pdf", func(t *testing.T) {
		extractor := &fakeExtractor{err: extract.ErrUnreadable}
		srv := newTestServer(t, nil, nil, extractor)

		rec := doUpload(t, srv, "pdf_file", "broken.pdf", pdfBytes)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, msgUnreadablePDF, decodeBody(t, rec)["error"])
	})

	t.Run("duplicate document", func(t *testing.T) {
		pipeline := &fakePipeline{result: ingest.Result{ID: "existing-1", Duplicate: true}}
		extractor := &fakeExtractor{text: "extracted text"}
		srv := newTestServer(t, pipeline, nil, extractor)

		rec := doUpload(t, srv, "pdf_file", "report.pdf", pdfBytes)
		assert.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, msgAlreadyDone, body["message"])
		assert.Equal(t, "existing-1", body["news_id"])
	})

	t.Run("save failure", func(t *testing.T) {
		pipeline := &fakePipeline{err: errors.New("db down")}
		extractor := &fakeExtractor{text: "extracted text"}
		srv := newTestServer(t, pipeline, nil, extractor)

		rec := doUpload(t, srv, "pdf_file", "report.pdf", pdfBytes)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, msgNotSaved, decodeBody(t, rec)["error"])
	})

	t.Run("saved but not embedded", func(t *testing.T) {
		pipeline := &fakePipeline{err: &ingest.PartialError{ID: "rec-9", Err: errors.New("index down")}}
		extractor := &fakeExtractor{text: "extracted text"}
		srv := newTestServer(t, pipeline, nil, extractor)

		rec := doUpload(t, srv, "pdf_file", "report.pdf", pdfBytes)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, msgNotEmbedded, decodeBody(t, rec)["error"])
	})
}
