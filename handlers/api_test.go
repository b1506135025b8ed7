package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"certportal/auth"
	"certportal/config"
	"certportal/db"
	"certportal/i18n"
	"certportal/models"
	"certportal/review"
)

var mux *http.ServeMux

func TestMain(m *testing.M) {
	// Setup
	dbPath := "./test_api.db"
	os.Remove(dbPath)
	db.InitDB(dbPath)
	config.AppConfig.SessionKey = "test-secret-key-for-api-handlers-test"
	config.AppConfig.JWTSecret = "test-jwt-secret-for-api-handlers"
	config.AppConfig.AppName = "CertPortalTest"
	config.AppConfig.CaptchaEnabled = false
	auth.InitStore()
	i18n.LoadTranslations("../i18n")

	guard := auth.NewGuard(3, 5*time.Minute)
	mux = http.NewServeMux()
	RegisterHandlers(mux, auth.NewService(db.DB, guard), review.NewService(db.DB))

	// Run tests
	code := m.Run()

	// Teardown
	db.DB.Close()
	os.Remove(dbPath)

	os.Exit(code)
}

func doJSON(method, path, ip string, payload any, headers map[string]string) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewBuffer(b)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = ip + ":12345"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func mustCreateUser(t *testing.T, username, password string, role models.Role) {
	t.Helper()
	hash, err := db.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if _, err := db.DB.Exec("INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)", username, hash, string(role)); err != nil {
		t.Fatalf("Could not seed user %s: %v", username, err)
	}
}

func tokenFor(t *testing.T, username string, role models.Role) string {
	t.Helper()
	token, err := auth.GenerateToken(username, role, []byte(config.AppConfig.JWTSecret), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	return token
}

func TestAPISignupLoginFlow(t *testing.T) {
	signup := map[string]string{"username": "flow_user", "password": "flow_password123"}

	w := doJSON("POST", "/api/signup", "10.1.0.1", signup, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Signup failed, expected 201, got %d. Body: %s", w.Code, w.Body.String())
	}

	// Duplicate username must conflict and not create a second account
	w = doJSON("POST", "/api/signup", "10.1.0.2", signup, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Duplicate signup: expected 409, got %d", w.Code)
	}
	var count int
	db.DB.QueryRow("SELECT COUNT(*) FROM users WHERE username = 'flow_user'").Scan(&count)
	if count != 1 {
		t.Errorf("Expected exactly 1 account after duplicate signup, found %d", count)
	}

	w = doJSON("POST", "/api/login", "10.1.0.3", signup, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Login failed, expected 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	dataMap := resp.Data.(map[string]interface{})
	token, _ := dataMap["token"].(string)
	if token == "" {
		t.Fatal("Login did not return a token")
	}
	if dataMap["role"] != "user" {
		t.Errorf("Expected role 'user', got %v", dataMap["role"])
	}

	// The token authenticates follow-up requests
	w = doJSON("GET", "/api/user/flow_user", "10.1.0.3", nil, map[string]string{"X-API-Token": token})
	if w.Code != http.StatusOK {
		t.Errorf("Get user with token: expected 200, got %d. Body: %s", w.Code, w.Body.String())
	}
}

func TestAPILoginUnknownUser(t *testing.T) {
	w := doJSON("POST", "/api/login", "10.2.0.1", map[string]string{"username": "no_such_user", "password": "whatever123"}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown user, got %d", w.Code)
	}
}

func TestAPILoginLockout(t *testing.T) {
	mustCreateUser(t, "lockme", "right-password", models.RoleUser)

	bad := map[string]string{"username": "lockme", "password": "wrong-password"}

	// First two failures report the shrinking budget
	for i, want := range []float64{2, 1} {
		w := doJSON("POST", "/api/login", "10.3.0.1", bad, nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("Attempt %d: expected 401, got %d", i+1, w.Code)
		}
		var resp APIResponse
		json.NewDecoder(w.Body).Decode(&resp)
		data := resp.Data.(map[string]interface{})
		if data["remaining_attempts"] != want {
			t.Errorf("Attempt %d: expected remaining_attempts %v, got %v", i+1, want, data["remaining_attempts"])
		}
	}

	// Third failure engages the lockout
	w := doJSON("POST", "/api/login", "10.3.0.1", bad, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Third attempt: expected 401, got %d", w.Code)
	}
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	data := resp.Data.(map[string]interface{})
	if data["remaining_attempts"] != float64(0) {
		t.Errorf("Third attempt: expected remaining_attempts 0, got %v", data["remaining_attempts"])
	}
	if data["lockout_until"] == nil {
		t.Error("Third attempt: expected lockout_until in response")
	}

	// Even the correct password is now refused
	w = doJSON("POST", "/api/login", "10.3.0.1", map[string]string{"username": "lockme", "password": "right-password"}, nil)
	if w.Code != http.StatusLocked {
		t.Errorf("Expected 423 while locked, got %d. Body: %s", w.Code, w.Body.String())
	}
}

func buildUpload(t *testing.T, username, filename string, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	fw.Write(image)
	mw.WriteField("username", username)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return body, mw.FormDataContentType()
}

func TestAPIUploadAndReviewFlow(t *testing.T) {
	mustCreateUser(t, "student_up", "student-pass-123", models.RoleUser)
	studentToken := tokenFor(t, "student_up", models.RoleUser)
	adminToken := tokenFor(t, "admin", models.RoleAdmin)

	imageBytes := []byte("jpeg-payload")
	fields := map[string]string{
		"semester":        "s4",
		"activityType":    "SPORTS",
		"certificateName": "State Championship",
		"issueDate":       "2026-02-20",
		"issuer":          "State Sports Board",
	}

	// Unauthenticated upload is refused
	body, contentType := buildUpload(t, "student_up", "champ.jpg", fields, imageBytes)
	req := httptest.NewRequest("POST", "/api/uploadImage", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Unauthenticated upload: expected 401, got %d", w.Code)
	}

	// Authenticated upload lands pending with zero points
	body, contentType = buildUpload(t, "student_up", "champ.jpg", fields, imageBytes)
	req = httptest.NewRequest("POST", "/api/uploadImage", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Token", studentToken)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Upload: expected 201, got %d. Body: %s", w.Code, w.Body.String())
	}

	// Listing shows the submission with its semester detail
	w2 := doJSON("GET", "/api/images/student_up", "10.4.0.1", nil, map[string]string{"X-API-Token": studentToken})
	if w2.Code != http.StatusOK {
		t.Fatalf("List images: expected 200, got %d", w2.Code)
	}
	var resp APIResponse
	json.NewDecoder(w2.Body).Decode(&resp)
	images := resp.Data.([]interface{})
	if len(images) != 1 {
		t.Fatalf("Expected 1 image, got %d", len(images))
	}
	img := images[0].(map[string]interface{})
	if img["name"] != "champ.jpg" || img["detail"] != "Semester-s4" || img["status"] != "pending" {
		t.Errorf("Unexpected image listing: %v", img)
	}

	// Raw bytes come back unchanged
	w2 = doJSON("GET", "/api/images/student_up/champ.jpg", "10.4.0.1", nil, map[string]string{"X-API-Token": studentToken})
	if w2.Code != http.StatusOK {
		t.Fatalf("Get image: expected 200, got %d", w2.Code)
	}
	if !bytes.Equal(w2.Body.Bytes(), imageBytes) {
		t.Error("Image bytes did not round-trip")
	}
	if ct := w2.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", ct)
	}

	// A student cannot review certificates
	statusReq := map[string]string{"username": "student_up", "image_name": "champ.jpg", "status": "accepted"}
	w2 = doJSON("PUT", "/api/certificates/status", "10.4.0.1", statusReq, map[string]string{"X-API-Token": studentToken})
	if w2.Code != http.StatusForbidden {
		t.Errorf("Student status change: expected 403, got %d", w2.Code)
	}

	// Admin accepts: points derive from the activity type
	w2 = doJSON("PUT", "/api/certificates/status", "10.4.0.1", statusReq, map[string]string{"X-API-Token": adminToken})
	if w2.Code != http.StatusOK {
		t.Fatalf("Admin status change: expected 200, got %d. Body: %s", w2.Code, w2.Body.String())
	}
	json.NewDecoder(w2.Body).Decode(&resp)
	cert := resp.Data.(map[string]interface{})
	if cert["status"] != "accepted" || cert["points"] != float64(60) {
		t.Errorf("Expected accepted/60, got %v/%v", cert["status"], cert["points"])
	}

	// Aggregate reflects the accepted submission
	w2 = doJSON("GET", "/api/aggregate/student_up", "10.4.0.1", nil, map[string]string{"X-API-Token": studentToken})
	if w2.Code != http.StatusOK {
		t.Fatalf("Aggregate: expected 200, got %d", w2.Code)
	}
	json.NewDecoder(w2.Body).Decode(&resp)
	stats := resp.Data.(map[string]interface{})
	if stats["total_certificates"] != float64(1) || stats["approved_certificates"] != float64(1) || stats["total_activity_points"] != float64(60) {
		t.Errorf("Unexpected aggregate: %v", stats)
	}
}

func TestAPIUploadValidation(t *testing.T) {
	mustCreateUser(t, "student_val", "student-pass-123", models.RoleUser)
	token := tokenFor(t, "student_val", models.RoleUser)

	// Missing issuer is rejected
	body, contentType := buildUpload(t, "student_val", "cert.jpg", map[string]string{
		"semester":        "s1",
		"activityType":    "NCC/NSS",
		"certificateName": "Camp Certificate",
		"issueDate":       "2026-01-01",
	}, []byte("img"))
	req := httptest.NewRequest("POST", "/api/uploadImage", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Token", token)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Missing issuer: expected 400, got %d. Body: %s", w.Code, w.Body.String())
	}

	// Unknown activity type is rejected
	body, contentType = buildUpload(t, "student_val", "cert.jpg", map[string]string{
		"semester":        "s1",
		"activityType":    "CHESS",
		"certificateName": "Camp Certificate",
		"issueDate":       "2026-01-01",
		"issuer":          "NCC Directorate",
	}, []byte("img"))
	req = httptest.NewRequest("POST", "/api/uploadImage", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Token", token)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Bad activity type: expected 400, got %d", w.Code)
	}
}

func TestAPIAdminGates(t *testing.T) {
	mustCreateUser(t, "plain_user", "plain-pass-123", models.RoleUser)
	userToken := tokenFor(t, "plain_user", models.RoleUser)
	adminToken := tokenFor(t, "admin", models.RoleAdmin)

	w := doJSON("GET", "/api/users", "10.5.0.1", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("No token: expected 401, got %d", w.Code)
	}

	w = doJSON("GET", "/api/users", "10.5.0.1", nil, map[string]string{"X-API-Token": userToken})
	if w.Code != http.StatusForbidden {
		t.Errorf("User token: expected 403, got %d", w.Code)
	}

	w = doJSON("GET", "/api/users", "10.5.0.1", nil, map[string]string{"X-API-Token": adminToken})
	if w.Code != http.StatusOK {
		t.Errorf("Admin token: expected 200, got %d", w.Code)
	}

	w = doJSON("GET", "/api/certificates", "10.5.0.1", nil, map[string]string{"X-API-Token": adminToken})
	if w.Code != http.StatusOK {
		t.Errorf("Admin certificates: expected 200, got %d", w.Code)
	}
}

func TestAPICheckUsername(t *testing.T) {
	mustCreateUser(t, "taken_name", "some-pass-123", models.RoleUser)

	w := doJSON("POST", "/api/checkUsername", "10.6.0.1", map[string]string{"username": "taken_name"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Data.(map[string]interface{})["available"] != false {
		t.Error("Expected taken username to be unavailable")
	}

	w = doJSON("POST", "/api/checkUsername", "10.6.0.1", map[string]string{"username": "free_name"}, nil)
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Data.(map[string]interface{})["available"] != true {
		t.Error("Expected free username to be available")
	}
}

func TestAPINewCaptcha(t *testing.T) {
	w := doJSON("GET", "/api/captcha/new", "10.7.0.1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	id, _ := resp.Data.(map[string]interface{})["captcha_id"].(string)
	if id == "" {
		t.Error("Expected a captcha id")
	}

	// The challenge image is served under /api/captcha/
	req := httptest.NewRequest("GET", fmt.Sprintf("/api/captcha/%s.png", id), nil)
	w2 := httptest.NewRecorder()
	mux.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Errorf("Captcha image: expected 200, got %d", w2.Code)
	}
}
