package main

import (
	"fmt"
	"log"
	"net/http"

	"certportal/auth"
	"certportal/config"
	"certportal/db"
	"certportal/handlers"
	"certportal/i18n"
	"certportal/review"

	"github.com/gorilla/csrf"
)

func main() {
	if err := config.LoadConfig("config.json"); err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	if err := i18n.LoadTranslations("i18n"); err != nil {
		log.Fatalf("Error loading translations: %v", err)
	}

	auth.InitStore()

	db.InitDB(config.AppConfig.DBPath)
	defer db.DB.Close()

	guard := auth.NewGuard(config.AppConfig.LockoutThreshold, config.AppConfig.LockoutWindow())
	authService := auth.NewService(db.DB, guard)
	reviewService := review.NewService(db.DB)

	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Register application handlers
	handlers.RegisterHandlers(mux, authService, reviewService)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.ListenIP, config.AppConfig.ListenPort)
	log.Printf("Server starting on %s (%s)", addr, config.AppConfig.AppName)

	// CSRF protection. API clients echo the token via the X-CSRF-Token
	// header; the SPA fetches it from the csrf cookie.
	csrfMiddleware := csrf.Protect(
		[]byte(config.AppConfig.SessionKey),
		csrf.Secure(false), // Set to true in production with HTTPS
		csrf.Path("/"),
	)

	handler := handlers.CORSMiddleware(csrfMiddleware(handlers.SecurityHeadersMiddleware(mux)))

	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal(err)
	}
}
