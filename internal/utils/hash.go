package utils

import "golang.org/x/crypto/bcrypt"

// HashKey returns a bcrypt hash of the provided operator key.
func HashKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckKey compares a bcrypt hashed operator key with its possible plaintext equivalent.
func CheckKey(hashedKey, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedKey), []byte(key)) == nil
}
