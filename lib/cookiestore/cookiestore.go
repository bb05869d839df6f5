package cookiestore

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"sahibinden-scraper/lib/fsutil"
)

// Cookie is the shape browsers and cookie-export extensions write, so that a
// snapshot taken from a manual login can be dropped in as-is.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expiry   float64 `json:"expiry,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HttpOnly bool    `json:"httpOnly,omitempty"`
}

func (c Cookie) HTTP() *http.Cookie {
	out := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
	if out.Path == "" {
		out.Path = "/"
	}
	if c.Expiry > 0 {
		out.Expires = time.Unix(int64(c.Expiry), 0)
	}
	return out
}

func FromHTTP(c *http.Cookie, domain string) Cookie {
	out := Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
	if out.Domain == "" {
		out.Domain = domain
	}
	if out.Path == "" {
		out.Path = "/"
	}
	if !c.Expires.IsZero() {
		out.Expiry = float64(c.Expires.Unix())
	}
	return out
}

// Store is a credential snapshot file that may be replaced externally at any
// time, readers detect replacement through ModTime.
type Store struct {
	path string
}

func New(path string) Store {
	return Store{path: path}
}

func (s Store) Path() string {
	return s.path
}

// Load returns the snapshot, a missing file yields no cookies and no error.
func (s Store) Load() ([]Cookie, error) {
	var cookies []Cookie
	err := fsutil.ReadJSON(s.path, &cookies)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cookies, nil
}

func (s Store) Save(cookies []Cookie) error {
	if cookies == nil {
		cookies = []Cookie{}
	}
	return fsutil.WriteJSON(s.path, cookies)
}

// ModTime returns the modification time of the snapshot, or the zero time if
// there is none.
func (s Store) ModTime() (time.Time, error) {
	info, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Import validates an uploaded snapshot and replaces the current one with it.
func (s Store) Import(r io.Reader) (int, error) {
	var cookies []Cookie
	err := json.NewDecoder(r).Decode(&cookies)
	if err != nil {
		return 0, fmt.Errorf("invalid cookie file: %w", err)
	}
	for i, c := range cookies {
		if c.Name == "" {
			return 0, fmt.Errorf("invalid cookie file: cookie %d has no name", i)
		}
	}
	err = s.Save(cookies)
	if err != nil {
		return 0, err
	}
	return len(cookies), nil
}
