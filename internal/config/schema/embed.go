package schema

import _ "embed"

//go:embed productid-reconciler-config.schema.json
var ConfigSchema []byte

//go:embed repo-inventory.schema.json
var RepoInventorySchema []byte
