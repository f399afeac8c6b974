// One-off: go run scripts/genhash.go <password>
// Prints a bcrypt hash for seeding accounts by hand:
//
//	INSERT INTO users (name, email, password_hash, role)
//	VALUES ('Admin', 'admin@example.com', '<hash>', 'admin');
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	password := "admin"
	if len(os.Args) > 1 {
		password = os.Args[1]
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		panic(err)
	}
	fmt.Print(string(h))
}
