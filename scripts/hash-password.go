//go:build ignore

// Prints the bcrypt hash to put in ADMIN_KEY_HASH.
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

const adminKeyCost = 12

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/hash-password.go <admin-key>\n")
		os.Exit(1)
	}

	key := os.Args[1]
	if len(key) < 16 {
		fmt.Fprintf(os.Stderr, "Warning: admin keys shorter than 16 characters are easy to guess\n")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), adminKeyCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(hash))
}
