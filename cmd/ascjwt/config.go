package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/takimoto3/appstoreconnect-core/token"
)

// Environment variables consulted when the matching flag is not set.
const (
	envKeyID    = "ASC_KEY_ID"
	envIssuerID = "ASC_ISSUER_ID"
	envKeyFile  = "ASC_KEY_FILE"
	envHost     = "ASC_HOST"
)

const defaultEnvFile = ".env"

type config struct {
	EnvFile  string
	KeyFile  string
	KeyID    string
	IssuerID string
	Host     string
	Query    string
	TTL      time.Duration
	Verbose  bool
}

// loadEnvFile reads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing default file is fine.
func (c *config) loadEnvFile() error {
	if c.EnvFile == "" {
		return nil
	}
	err := godotenv.Load(c.EnvFile)
	if err != nil && errors.Is(err, fs.ErrNotExist) && c.EnvFile == defaultEnvFile {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load env file %q: %w", c.EnvFile, err)
	}
	return nil
}

// resolve fills unset fields from the environment. needIDs is false for
// commands that only need the key.
func (c *config) resolve(lookup func(string) (string, bool), needIDs bool) error {
	fill := func(dst *string, name string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	fill(&c.KeyFile, envKeyFile)
	fill(&c.KeyID, envKeyID)
	fill(&c.IssuerID, envIssuerID)
	fill(&c.Host, envHost)

	if c.KeyFile == "" {
		return fmt.Errorf("missing key file: set --key-file or %s", envKeyFile)
	}
	if !needIDs {
		return nil
	}
	if c.KeyID == "" {
		return fmt.Errorf("missing key ID: set --key-id or %s", envKeyID)
	}
	if c.IssuerID == "" {
		return fmt.Errorf("missing issuer ID: set --issuer-id or %s", envIssuerID)
	}
	if _, err := uuid.Parse(c.IssuerID); err != nil {
		return fmt.Errorf("issuer ID %q is not a UUID: %w", c.IssuerID, err)
	}
	if c.TTL <= 0 || c.TTL > token.MaxTokenTTL {
		return fmt.Errorf("ttl must be between 1s and %s", token.MaxTokenTTL)
	}
	return nil
}
