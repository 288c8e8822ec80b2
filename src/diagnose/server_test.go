package diagnose

import (
	"bytes"
	"context"
	"encoding/json"
	goimage "image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"willow-server-go/src/configs"
	"willow-server-go/src/core/auth"
	"willow-server-go/src/core/image"
	"willow-server-go/src/task"
)

// mockDiagnoser 固定返回一条记录
type mockDiagnoser struct {
	record *DiagnosisRecord
	err    error
	calls  int
}

func (m *mockDiagnoser) Diagnose(ctx context.Context, img image.ImageData) (*DiagnosisRecord, error) {
	m.calls++
	return m.record, m.err
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, goimage.NewRGBA(goimage.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("生成PNG失败: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("构造表单失败: %v", err)
	}
	part.Write(data)
	writer.Close()
	return body, writer.FormDataContentType()
}

func newTestServer(t *testing.T, config *configs.Config, diagnoser Diagnoser) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	validator := image.NewImageSecurityValidator(&configs.SecurityConfig{
		MaxFileSize:    5 * 1024 * 1024,
		MaxWidth:       4096,
		MaxHeight:      4096,
		AllowedFormats: []string{"jpeg", "png", "gif", "bmp", "webp"},
	})
	taskMgr := task.NewTaskManager(task.ResourceConfig{Workers: 1, QueueSize: 4}, newTestLogger(t))

	server := NewServer(config, diagnoser, validator, nil, taskMgr, nil, newTestLogger(t))
	router := gin.New()
	apiGroup := router.Group("/api")
	if err := server.Start(router, apiGroup); err != nil {
		t.Fatalf("注册路由失败: %v", err)
	}
	return router
}

func TestDiagnoseEndpoint(t *testing.T) {
	expected := &DiagnosisRecord{
		PlantName:       "Tomato",
		Condition:       "Early Blight",
		DetailDiagnosis: "Fungal infection.",
		ActionPlan:      []ActionPlanItem{{ID: 1, Action: "Apply fungicide."}},
	}
	diagnoser := &mockDiagnoser{record: expected}
	router := newTestServer(t, &configs.Config{}, diagnoser)

	body, contentType := multipartBody(t, "file", "leaf.png", encodePNG(t))
	req := httptest.NewRequest(http.MethodPost, "/api/diagnose", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("期望200, 实际%d: %s", w.Code, w.Body.String())
	}
	record := &DiagnosisRecord{}
	if err := json.Unmarshal(w.Body.Bytes(), record); err != nil {
		t.Fatalf("响应不是合法JSON: %v", err)
	}
	if record.PlantName != expected.PlantName || record.Condition != expected.Condition {
		t.Errorf("响应记录不正确: %+v", record)
	}
	if diagnoser.calls != 1 {
		t.Errorf("期望1次诊断调用, 实际%d次", diagnoser.calls)
	}
}

func TestDiagnoseMissingFile(t *testing.T) {
	diagnoser := &mockDiagnoser{record: &DiagnosisRecord{}}
	router := newTestServer(t, &configs.Config{}, diagnoser)

	req := httptest.NewRequest(http.MethodPost, "/api/diagnose", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望400, 实际%d", w.Code)
	}
	if diagnoser.calls != 0 {
		t.Errorf("缺少文件时不应执行诊断, 实际%d次", diagnoser.calls)
	}
}

func TestDiagnoseRejectsInvalidImage(t *testing.T) {
	diagnoser := &mockDiagnoser{record: &DiagnosisRecord{}}
	router := newTestServer(t, &configs.Config{}, diagnoser)

	body, contentType := multipartBody(t, "file", "doc.txt", []byte("definitely not an image"))
	req := httptest.NewRequest(http.MethodPost, "/api/diagnose", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望400, 实际%d", w.Code)
	}
	if diagnoser.calls != 0 {
		t.Errorf("非法图片不应执行诊断, 实际%d次", diagnoser.calls)
	}
}

func TestStatusEndpoint(t *testing.T) {
	router := newTestServer(t, &configs.Config{}, &mockDiagnoser{record: &DiagnosisRecord{}})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("期望200, 实际%d", w.Code)
	}
	payload := map[string]interface{}{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("响应不是合法JSON: %v", err)
	}
	if payload["status"] != "ok" {
		t.Errorf("status期望ok, 实际 %v", payload["status"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	config := &configs.Config{}
	config.Web.Auth.Enabled = true
	config.Web.Auth.Secret = "test-secret"
	router := newTestServer(t, config, &mockDiagnoser{record: &DiagnosisRecord{}})

	// 无token拒绝
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("无token期望401, 实际%d", w.Code)
	}

	// 错误token拒绝
	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("错误token期望401, 实际%d", w.Code)
	}

	// 合法token放行
	token, err := auth.NewAuthToken("test-secret").GenerateToken("client-1")
	if err != nil {
		t.Fatalf("生成token失败: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("合法token期望200, 实际%d", w.Code)
	}
}
