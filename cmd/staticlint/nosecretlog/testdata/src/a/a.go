package a

import (
	"log"
	"log/slog"
)

type user struct {
	Email        string
	PasswordHash string
}

func hashPassword(s string) string { return s }

func logging(u user, plainPassword, apiSecret string, logger *slog.Logger) {
	log.Println("login attempt", u.Email)
	log.Println("login attempt", u.PasswordHash)     // want `possible secret "PasswordHash" passed to Println`
	log.Printf("pw=%s", plainPassword)               // want `possible secret "plainPassword" passed to Printf`
	slog.Info("settings", "key", apiSecret)          // want `possible secret "apiSecret" passed to Info`
	logger.Warn("credential", "len", len(apiSecret)) // want `possible secret "apiSecret" passed to Warn`

	log.Println("hashed", hashPassword("x"))
	log.Println("password reset requested")
}
