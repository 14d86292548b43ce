// Command gentoken mints a signed bearer token for manual API testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"server/internal/auth"
)

func main() {
	_ = godotenv.Load()

	subject := flag.String("sub", "", "user id to embed as the token subject")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "signing secret (defaults to JWT_SECRET)")
	days := flag.Int("days", 1, "token lifetime in days")
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "gentoken: -sub is required")
		os.Exit(2)
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "gentoken: no signing secret (set JWT_SECRET or pass -secret)")
		os.Exit(2)
	}

	token, err := auth.Sign(*secret, *subject, time.Duration(*days)*24*time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gentoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
