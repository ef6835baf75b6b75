package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// schemaSource constrains a decoded manifest. Defaults are applied before
// validation, so every field is concrete here.
const schemaSource = `
#Manifest: {
	project: {
		name:    string
		version: string
	}
	source: entry: =~"\\.gpy$"
	build: {
		output:      string
		"max-depth": int & >0 & <=100000
	}
	cache: {
		enabled: bool
		path:    string & !=""
	}
	run: {
		"max-steps": int & >=0
		"max-stack": int & >0
		"max-heap":  int & >0
	}
	server: {
		port:        int & >0 & <=65535
		"grpc-port": int & >0 & <=65535
	}
}
`

// Validate checks m against the manifest schema.
func Validate(m *Manifest) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Manifest"))

	v := def.Unify(ctx.Encode(m))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}
