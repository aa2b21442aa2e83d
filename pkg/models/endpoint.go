package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// DatabaseKind identifies which database family an endpoint belongs to.
type DatabaseKind string

const (
	KindMongo    DatabaseKind = "mongodb"
	KindPostgres DatabaseKind = "postgres"
	KindMySQL    DatabaseKind = "mysql"
)

// ValidDatabaseKinds contains all supported database kinds.
var ValidDatabaseKinds = []DatabaseKind{KindMongo, KindPostgres, KindMySQL}

// ParseDatabaseKind normalizes a user-supplied database type string.
// Accepts common aliases ("mongo", "document", "postgresql"). Returns an
// error for anything unrecognized; empty input returns an empty kind so the
// caller can fall back to scheme inference.
func ParseDatabaseKind(s string) (DatabaseKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "mongodb", "mongo", "document":
		return KindMongo, nil
	case "postgres", "postgresql", "pg":
		return KindPostgres, nil
	case "mysql", "mariadb":
		return KindMySQL, nil
	default:
		return "", fmt.Errorf("unknown database type %q", s)
	}
}

// KindFromScheme infers the database kind from a connection URL scheme.
func KindFromScheme(rawURL string) (DatabaseKind, error) {
	scheme, _, found := strings.Cut(rawURL, "://")
	if !found {
		return "", fmt.Errorf("connection URL has no scheme")
	}
	switch strings.ToLower(scheme) {
	case "mongodb", "mongodb+srv":
		return KindMongo, nil
	case "postgres", "postgresql":
		return KindPostgres, nil
	case "mysql":
		return KindMySQL, nil
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", scheme)
	}
}

// DatabaseEndpoint describes one target database for a single request.
// It is immutable once constructed.
type DatabaseEndpoint struct {
	RawURL string
	Kind   DatabaseKind
}

// NewDatabaseEndpoint builds an endpoint from a connection URL and an
// optional explicit kind. When kind is empty it is inferred from the scheme.
func NewDatabaseEndpoint(rawURL, kind string) (*DatabaseEndpoint, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("connection URL is required")
	}
	k, err := ParseDatabaseKind(kind)
	if err != nil {
		return nil, err
	}
	if k == "" {
		k, err = KindFromScheme(rawURL)
		if err != nil {
			return nil, err
		}
	}
	return &DatabaseEndpoint{RawURL: rawURL, Kind: k}, nil
}

// Sanitized returns the endpoint URL with userinfo, query string and
// fragment removed. This is the only form that may be persisted or logged.
func (e *DatabaseEndpoint) Sanitized() string {
	u, err := url.Parse(e.RawURL)
	if err != nil {
		// Unparseable URLs fall back to a blunt strip of anything between
		// the scheme separator and the last '@'.
		return stripUserinfo(e.RawURL)
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// DBKey returns the stable, credential-free cache key for this endpoint:
// hex(SHA-256(sanitized URL)) joined with the kind. Two URLs differing only
// in credentials or query string produce the same key.
func (e *DatabaseEndpoint) DBKey() string {
	sum := sha256.Sum256([]byte(e.Sanitized()))
	return hex.EncodeToString(sum[:]) + ":" + string(e.Kind)
}

func stripUserinfo(rawURL string) string {
	scheme, rest, found := strings.Cut(rawURL, "://")
	if !found {
		return rawURL
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}
	if q := strings.IndexAny(rest, "?#"); q >= 0 {
		rest = rest[:q]
	}
	return scheme + "://" + rest
}
