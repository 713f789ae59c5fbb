// Command lwkey encrypts a venue API secret into the file read through
// venue.encrypted_secret_path. The secret is read from stdin and the
// password from LAZYWHALE_VENUE_SECRET_PASSWORD.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alanyoungcy/lazywhale/internal/crypto"
)

func main() {
	out := flag.String("out", "secret.json", "path of the encrypted secret file")
	check := flag.Bool("check", false, "decrypt -out instead of writing it")
	flag.Parse()

	password := os.Getenv("LAZYWHALE_VENUE_SECRET_PASSWORD")
	if password == "" {
		fail(fmt.Errorf("LAZYWHALE_VENUE_SECRET_PASSWORD is not set"))
	}

	if *check {
		if _, err := crypto.LoadSecret(crypto.SecretConfig{EncryptedPath: *out, Password: password}); err != nil {
			fail(err)
		}
		fmt.Printf("%s decrypts\n", *out)
		return
	}

	secret, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && secret == "" {
		fail(fmt.Errorf("reading secret from stdin: %w", err))
	}
	blob, err := crypto.EncryptSecret(strings.TrimSpace(secret), password)
	if err != nil {
		fail(err)
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		fail(fmt.Errorf("writing %s: %w", *out, err))
	}
	fmt.Printf("wrote %s\n", *out)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "lwkey: %v\n", err)
	os.Exit(1)
}
