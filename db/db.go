package db

import (
	"database/sql"
	"log"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var DB *sql.DB

// DummyHash is a bcrypt hash compared against when a username does not
// exist, so login response timing does not reveal account existence.
var DummyHash string

const bcryptCost = 14

func InitDB(dataSourceName string) {
	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		log.Fatal(err)
	}

	createTables := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS certificates (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		semester TEXT NOT NULL,
		activity_type TEXT NOT NULL DEFAULT '',
		cert_name TEXT NOT NULL,
		issue_date TEXT NOT NULL,
		issuer TEXT NOT NULL,
		image_name TEXT NOT NULL,
		image_data TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		points INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (username, image_name)
	);
	`

	_, err = DB.Exec(createTables)
	if err != nil {
		log.Fatalf("Error creating tables: %v", err)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("certportal-dummy-password"), bcryptCost)
	if err != nil {
		log.Fatalf("Error generating dummy hash: %v", err)
	}
	DummyHash = string(dummy)

	// Create default admin if not exists
	var count int
	err = DB.QueryRow("SELECT COUNT(*) FROM users WHERE role = 'admin'").Scan(&count)
	if err != nil {
		log.Fatalf("Error checking for admin user: %v", err)
	}

	if count == 0 {
		// Default admin: admin / admin123
		hashedPassword, _ := HashPassword("admin123")
		_, err = DB.Exec("INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)", "admin", hashedPassword, "admin")
		if err != nil {
			log.Fatalf("Error creating default admin: %v", err)
		}
		log.Println("Default admin created: admin / admin123")
	}
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
