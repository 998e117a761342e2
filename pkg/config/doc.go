// Package config loads and validates stack manifests.
//
// A manifest describes one deployable stack: the resource group, the SQL
// server and database, the function host, the static site with its local
// asset root, the endpoint query command, and signing options. Manifests
// can be written in CUE (stack.cue) or YAML (stack.yaml); the loader picks
// the parser from the file extension and validates the decoded struct with
// go-playground/validator plus a few semantic checks the tag language
// cannot express.
//
// A manifest may also reference a Starlark rewrite script. The script
// defines a rewrite(name, content, values) function that transforms asset
// text before upload, which generalizes simple placeholder substitution.
package config
