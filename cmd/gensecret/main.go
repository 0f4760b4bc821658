// gensecret prints a random key suitable for SECRET_KEY
package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/authcore/internal/service/auth/tokencodec"
)

func main() {
	if err := run(os.Stdout, rand.Reader, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, random io.Reader, args []string) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	size := fs.IntP("bytes", "b", tokencodec.MinSecretLen, "Random bytes in key")
	encoding := fs.StringP("encoding", "e", "hex", "Key encoding (hex, base64)")
	asEnv := fs.Bool("env", false, "Print as SECRET_KEY=... line for .env file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *size < tokencodec.MinSecretLen {
		return fmt.Errorf("key has to be at least %d bytes, got %d", tokencodec.MinSecretLen, *size)
	}

	b := make([]byte, *size)
	if _, err := io.ReadFull(random, b); err != nil {
		return err
	}

	var key string
	switch *encoding {
	case "hex":
		key = hex.EncodeToString(b)
	case "base64":
		key = base64.RawURLEncoding.EncodeToString(b)
	default:
		return fmt.Errorf("unknown encoding %q", *encoding)
	}

	if *asEnv {
		key = "SECRET_KEY=" + key
	}

	_, err := fmt.Fprintln(out, key)
	return err
}
