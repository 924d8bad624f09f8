package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost matches the original deployment's hashes so existing
// credentials keep verifying.
const bcryptCost = 10

// HashPassword 비밀번호 해시 생성
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 비밀번호 검증
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
