package auth

import "golang.org/x/crypto/bcrypt"

func bcryptGenerate(password []byte) ([]byte, error) {
	return bcrypt.GenerateFromPassword(password, bcrypt.MinCost)
}
