package handlers

import (
	"net/http"

	"certportal/auth"
	"certportal/review"

	"github.com/dchest/captcha"
)

var (
	authService   *auth.Service
	reviewService *review.Service
)

// RegisterHandlers wires the API routes onto the mux. The services are
// injected here so tests own their lifecycle.
func RegisterHandlers(mux *http.ServeMux, as *auth.Service, rs *review.Service) {
	authService = as
	reviewService = rs

	mux.HandleFunc("POST /api/checkUsername", APICheckUsernameHandler)
	mux.HandleFunc("POST /api/signup", APISignupHandler)
	mux.HandleFunc("POST /api/login", APILoginHandler)
	mux.HandleFunc("POST /api/logout", APILogoutHandler)

	mux.HandleFunc("GET /api/user/{username}", APIGetUserHandler)
	mux.HandleFunc("GET /api/users", APIListUsersHandler)

	mux.HandleFunc("POST /api/uploadImage", APIUploadImageHandler)
	mux.HandleFunc("GET /api/images/{username}", APIListImagesHandler)
	mux.HandleFunc("GET /api/images/{username}/{imageName}", APIGetImageHandler)

	mux.HandleFunc("GET /api/certificates", APIListCertificatesHandler)
	mux.HandleFunc("PUT /api/certificates/status", APISetStatusHandler)
	mux.HandleFunc("GET /api/aggregate/{username}", APIAggregateHandler)

	mux.HandleFunc("GET /api/captcha/new", APINewCaptchaHandler)
	mux.Handle("GET /api/captcha/", captcha.Server(captcha.StdWidth, captcha.StdHeight))
}
