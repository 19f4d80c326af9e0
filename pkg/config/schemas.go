package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
)

// manifestSchema constrains CUE manifests. Definitions are closed, so a
// misspelled attribute is an error rather than silently ignored.
const manifestSchema = `
#Datasource: {
	name?:             string
	"jndi-name":       string & !=""
	"connection-url":  string & !=""
	"driver-name":     string & !=""
	"user-name"?:      string
	password?:         string
	enabled?:          bool

	"pool-name"?:                      string & !=""
	"use-java-context"?:               bool
	"share-prepared-statements"?:      bool
	"prepared-statements-cache-size"?: int & >=0
	"new-connection-sql"?:             string
	"use-ccm"?:                        bool
	jta?:                              bool
	"security-domain"?:                string
	"transaction-isolation"?:          string

	"min-pool-size"?:       int & >=0
	"max-pool-size"?:       int & >=1
	"pool-prefill"?:        bool
	"pool-use-strict-min"?: bool

	"check-valid-connection-sql"?:          string
	"valid-connection-checker-class-name"?: string
	"stale-connection-checker-class-name"?: string
	"exception-sorter-class-name"?:         string
	"background-validation"?:               bool
	"background-validation-millis"?:        int & >=0
	"validate-on-match"?:                   bool

	"connection-properties"?: {[string]: string}
}

#Manifest: {
	server?: string
	profiles?: [...string]
	datasources: [...#Datasource] | {[string]: #Datasource}
}
`

// schema holds the compiled manifest schema for one cue.Context. Values from
// different contexts cannot be unified.
type schema struct {
	once     sync.Once
	manifest cue.Value
	err      error
}

func (s *schema) compile(ctx *cue.Context) (cue.Value, error) {
	s.once.Do(func() {
		val := ctx.CompileString(manifestSchema, cue.Filename("manifest-schema.cue"))
		if err := val.Err(); err != nil {
			s.err = fmt.Errorf("failed to compile manifest schema: %w", err)
			return
		}
		s.manifest = val.LookupPath(cue.ParsePath("#Manifest"))
		if !s.manifest.Exists() {
			s.err = fmt.Errorf("manifest schema has no #Manifest definition")
		}
	})
	return s.manifest, s.err
}
