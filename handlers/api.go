package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"certportal/apperr"
	"certportal/auth"
	"certportal/config"
	"certportal/db"
	"certportal/i18n"
	"certportal/models"
	"certportal/review"

	"github.com/dchest/captcha"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

const tokenValidity = 24 * time.Hour

func sendJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func errMessageKey(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return "NotFound"
	case errors.Is(err, apperr.ErrValidation):
		return "ValidationFailed"
	case errors.Is(err, apperr.ErrConflict):
		return "UsernameAlreadyExists"
	case errors.Is(err, apperr.ErrAuthFailed):
		return "InvalidCredentials"
	case errors.Is(err, apperr.ErrLockedOut):
		return "AccountLocked"
	case errors.Is(err, apperr.ErrStoreUnavailable):
		return "StoreUnavailable"
	}
	return "InternalServerError"
}

func sendAPIError(w http.ResponseWriter, lang string, err error) {
	sendJSONResponse(w, apperr.HTTPStatus(err), APIResponse{Status: "error", Message: i18n.T(lang, errMessageKey(err))})
}

// currentIdentity resolves the caller from the browser session cookie or,
// failing that, an API token (X-API-Token header or Authorization bearer).
func currentIdentity(r *http.Request) (string, models.Role, bool) {
	if username := auth.GetUsername(r); username != "" {
		return username, auth.GetRole(r), true
	}

	token := r.Header.Get("X-API-Token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return "", "", false
	}

	claims, err := auth.ParseToken(token, []byte(config.AppConfig.JWTSecret))
	if err != nil {
		return "", "", false
	}
	return claims.Username, claims.Role, true
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	lang := i18n.DetectLanguage(r)
	_, role, ok := currentIdentity(r)
	if !ok {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: i18n.T(lang, "Unauthorized")})
		return false
	}
	if role != models.RoleAdmin {
		sendJSONResponse(w, http.StatusForbidden, APIResponse{Status: "error", Message: i18n.T(lang, "Forbidden")})
		return false
	}
	return true
}

// requireOwnerOrAdmin gates per-student resources: the student themselves or
// any admin may pass.
func requireOwnerOrAdmin(w http.ResponseWriter, r *http.Request, owner string) bool {
	lang := i18n.DetectLanguage(r)
	username, role, ok := currentIdentity(r)
	if !ok {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: i18n.T(lang, "Unauthorized")})
		return false
	}
	if username != owner && role != models.RoleAdmin {
		sendJSONResponse(w, http.StatusForbidden, APIResponse{Status: "error", Message: i18n.T(lang, "Forbidden")})
		return false
	}
	return true
}

func APICheckUsernameHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)

	var input struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}

	var count int
	if err := db.DB.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", input.Username).Scan(&count); err != nil {
		sendAPIError(w, lang, apperr.ErrStoreUnavailable)
		return
	}

	if count > 0 {
		sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: i18n.T(lang, "UsernameAlreadyExists"), Data: map[string]bool{"available": false}})
		return
	}
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: i18n.T(lang, "UsernameAvailable"), Data: map[string]bool{"available": true}})
}

func APISignupHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)

	ip := getClientIP(r)
	if !signupLimiter.Allow(ip) {
		sendJSONResponse(w, http.StatusTooManyRequests, APIResponse{Status: "error", Message: i18n.T(lang, "TooManyRequests")})
		return
	}

	var input struct {
		Username        string `json:"username"`
		Password        string `json:"password"`
		CaptchaID       string `json:"captcha_id"`
		CaptchaSolution string `json:"captcha_solution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}

	if input.Username == "" {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "ValidationFailed")})
		return
	}
	if err := auth.ValidatePassword(input.Password); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "PasswordTooShort")})
		return
	}
	if config.AppConfig.CaptchaEnabled && !captcha.VerifyString(input.CaptchaID, input.CaptchaSolution) {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "CaptchaFailed")})
		return
	}

	hashedPassword, err := db.HashPassword(input.Password)
	if err != nil {
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: i18n.T(lang, "InternalServerError")})
		return
	}
	_, err = db.DB.Exec("INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)",
		input.Username, hashedPassword, string(models.RoleUser))
	if err != nil {
		// Username uniqueness is enforced by the store
		sendJSONResponse(w, http.StatusConflict, APIResponse{Status: "error", Message: i18n.T(lang, "UsernameAlreadyExists")})
		return
	}

	sendJSONResponse(w, http.StatusCreated, APIResponse{
		Status:  "success",
		Message: i18n.T(lang, "UserCreated"),
		Data:    map[string]string{"username": input.Username},
	})
}

func APILoginHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)

	ip := getClientIP(r)
	if !loginLimiter.Allow(ip) {
		sendJSONResponse(w, http.StatusTooManyRequests, APIResponse{Status: "error", Message: i18n.T(lang, "TooManyRequests")})
		return
	}

	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}

	res, err := authService.AttemptLogin(input.Username, input.Password)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		sendJSONResponse(w, http.StatusNotFound, APIResponse{Status: "error", Message: i18n.T(lang, "UserNotFound")})
		return
	case errors.Is(err, apperr.ErrLockedOut):
		sendJSONResponse(w, http.StatusLocked, APIResponse{
			Status:  "error",
			Message: i18n.T(lang, "AccountLocked"),
			Data:    map[string]any{"lockout_until": res.LockedUntil.Format(time.RFC3339)},
		})
		return
	case errors.Is(err, apperr.ErrAuthFailed):
		data := map[string]any{"remaining_attempts": res.Remaining}
		if !res.LockedUntil.IsZero() {
			data["lockout_until"] = res.LockedUntil.Format(time.RFC3339)
		}
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{
			Status:  "error",
			Message: i18n.T(lang, "InvalidCredentials"),
			Data:    data,
		})
		return
	case err != nil:
		sendAPIError(w, lang, err)
		return
	}

	user := res.User
	auth.SetSession(w, r, user.Username, user.Role)

	token, err := auth.GenerateToken(user.Username, user.Role, []byte(config.AppConfig.JWTSecret), tokenValidity)
	if err != nil {
		log.Printf("Error generating API token: %v", err)
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: i18n.T(lang, "InternalServerError")})
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{
		Status: "success",
		Data: map[string]any{
			"token":    token,
			"username": user.Username,
			"role":     user.Role,
		},
	})
}

func APILogoutHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	auth.ClearSession(w, r)
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: i18n.T(lang, "LoggedOut")})
}

func APIGetUserHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	username := r.PathValue("username")
	if !requireOwnerOrAdmin(w, r, username) {
		return
	}

	var user models.User
	err := db.DB.QueryRow("SELECT id, username, role, created_at FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.Role, &user.CreatedAt)
	if err != nil {
		sendJSONResponse(w, http.StatusNotFound, APIResponse{Status: "error", Message: i18n.T(lang, "UserNotFound")})
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: user})
}

func APIListUsersHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	if !requireAdmin(w, r) {
		return
	}

	rows, err := db.DB.Query("SELECT id, username, role, created_at FROM users ORDER BY username")
	if err != nil {
		log.Printf("Error querying users: %v", err)
		sendAPIError(w, lang, apperr.ErrStoreUnavailable)
		return
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.CreatedAt); err != nil {
			continue
		}
		users = append(users, u)
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: users})
}

const maxUploadBytes = 10 << 20 // 10 MB

func APIUploadImageHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}

	owner := r.FormValue("username")
	if !requireOwnerOrAdmin(w, r, owner) {
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		sendAPIError(w, lang, apperr.ErrValidation)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}

	cert, err := reviewService.Submit(review.Submission{
		Username:     owner,
		Semester:     r.FormValue("semester"),
		ActivityType: models.ActivityType(r.FormValue("activityType")),
		CertName:     r.FormValue("certificateName"),
		IssueDate:    r.FormValue("issueDate"),
		Issuer:       r.FormValue("issuer"),
		ImageName:    header.Filename,
		Image:        image,
	})
	if err != nil {
		sendAPIError(w, lang, err)
		return
	}

	sendJSONResponse(w, http.StatusCreated, APIResponse{Status: "success", Message: i18n.T(lang, "UploadSuccessful"), Data: cert})
}

func APIListImagesHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	owner := r.PathValue("username")
	if !requireOwnerOrAdmin(w, r, owner) {
		return
	}

	certs, err := reviewService.ListByOwner(owner)
	if err != nil {
		sendAPIError(w, lang, err)
		return
	}

	type imageInfo struct {
		Name         string              `json:"name"`
		Detail       string              `json:"detail"`
		ActivityType models.ActivityType `json:"activity_type"`
		Status       models.ReviewStatus `json:"status"`
		Points       int                 `json:"points"`
	}

	images := make([]imageInfo, 0, len(certs))
	for _, c := range certs {
		images = append(images, imageInfo{
			Name:         c.ImageName,
			Detail:       "Semester-" + c.Semester,
			ActivityType: c.ActivityType,
			Status:       c.Status,
			Points:       c.Points,
		})
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: images})
}

func APIGetImageHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	owner := r.PathValue("username")
	if !requireOwnerOrAdmin(w, r, owner) {
		return
	}

	image, err := reviewService.GetImage(owner, r.PathValue("imageName"))
	if err != nil {
		sendAPIError(w, lang, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(image)
}

func APIListCertificatesHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	if !requireAdmin(w, r) {
		return
	}

	certs, err := reviewService.ListAll()
	if err != nil {
		sendAPIError(w, lang, err)
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: certs})
}

func APISetStatusHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	if !requireAdmin(w, r) {
		return
	}

	var input struct {
		Username  string `json:"username"`
		ImageName string `json:"image_name"`
		Status    string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: i18n.T(lang, "InvalidRequestBody")})
		return
	}

	cert, err := reviewService.SetStatus(input.Username, input.ImageName, models.ReviewStatus(input.Status))
	if err != nil {
		sendAPIError(w, lang, err)
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: i18n.T(lang, "StatusUpdated"), Data: cert})
}

func APIAggregateHandler(w http.ResponseWriter, r *http.Request) {
	lang := i18n.DetectLanguage(r)
	owner := r.PathValue("username")
	if !requireOwnerOrAdmin(w, r, owner) {
		return
	}

	stats, err := reviewService.Aggregate(owner)
	if err != nil {
		sendAPIError(w, lang, err)
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: stats})
}

func APINewCaptchaHandler(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: map[string]string{"captcha_id": captcha.New()}})
}
