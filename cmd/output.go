package cmd

import (
	"encoding/json"
	"os"
)

// printJSON is the CLI's only rendering path: every search/detail command
// emits its result as pretty-printed JSON on stdout so the commands compose
// with jq rather than a bespoke table renderer.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
