package otpstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"sahibinden-scraper/lib/fsutil"
)

var ErrEmptyCode = errors.New("otp code is empty")

type value struct {
	Code string `json:"code"`
}

// Store is a single-value channel for a one-time passcode. A submitted code is
// handed out by Consume at most once.
type Store struct {
	path string
}

func New(path string) Store {
	return Store{path: path}
}

// Submit replaces any pending code with `code`.
func (s Store) Submit(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrEmptyCode
	}
	return fsutil.WriteJSON(s.path, value{Code: code})
}

// Consume returns the pending code and deletes it. The file is first renamed to a
// claim path, so two consumers can never both observe the same code.
func (s Store) Consume() (string, bool, error) {
	claim := s.path + ".claimed"
	err := os.Rename(s.path, claim)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer os.Remove(claim)

	contents, err := os.ReadFile(claim)
	if err != nil {
		return "", false, err
	}
	var v value
	err = json.Unmarshal(contents, &v)
	if err != nil {
		return "", false, fmt.Errorf("discarding malformed otp file: %w", err)
	}
	code := strings.TrimSpace(v.Code)
	if code == "" {
		return "", false, nil
	}
	return code, true, nil
}

// Pending reports whether a code is waiting to be consumed.
func (s Store) Pending() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
