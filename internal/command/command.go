// Package command assembles the argument vector handed to the runtime.
package command

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/kingrea/craftlaunch/internal/manifest"
)

// ErrInvalidUsername rejects names that are empty, longer than 16
// characters, or contain anything besides letters, digits and underscore.
var ErrInvalidUsername = errors.New("command: invalid username")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)

// Offline identity values passed to every launch.
const (
	AccessToken = "0"
	UserType    = "mojang"
)

// Input is everything Build needs. Paths are passed through verbatim as
// discrete arguments.
type Input struct {
	Version    *manifest.Version
	VersionID  string
	Username   string
	Classpath  string
	NativesDir string
	GameDir    string
	AssetsDir  string
	MinHeap    string
	MaxHeap    string
}

// ValidateUsername reports whether name can be passed to the runtime.
func ValidateUsername(name string) error {
	if !usernamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, name)
	}
	return nil
}

// Build returns the runtime arguments in launch order, excluding the
// executable itself.
func Build(in Input) ([]string, error) {
	if in.Version == nil {
		return nil, fmt.Errorf("command: manifest is required")
	}
	if in.Version.MainClass == "" {
		return nil, manifest.ErrMissingMainClass
	}
	if err := ValidateUsername(in.Username); err != nil {
		return nil, err
	}
	return []string{
		"-Xmx" + in.MaxHeap,
		"-Xms" + in.MinHeap,
		"-Djava.library.path=" + in.NativesDir,
		"-cp", in.Classpath,
		in.Version.MainClass,
		"--username", in.Username,
		"--version", in.VersionID,
		"--gameDir", in.GameDir,
		"--assetsDir", in.AssetsDir,
		"--assetIndex", in.Version.AssetIndex(),
		"--uuid", uuid.Nil.String(),
		"--accessToken", AccessToken,
		"--userType", UserType,
	}, nil
}

// Flatten renders tokens as one line for logs. Tokens with whitespace or
// quotes are double-quoted.
func Flatten(tokens []string) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		if tok == "" || strings.ContainsAny(tok, " \t\"") {
			tok = `"` + strings.ReplaceAll(tok, `"`, `\"`) + `"`
		}
		parts[i] = tok
	}
	return strings.Join(parts, " ")
}
