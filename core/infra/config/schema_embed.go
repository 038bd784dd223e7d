package config

import "embed"

const upstreamSchemaFile = "schema/upstream.schema.json"

//go:embed schema/*.json
var configSchemaFS embed.FS
