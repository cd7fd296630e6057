package bundle

import (
	"embed"
	"io/fs"
)

//go:embed examples/starter/*
var embeddedStarter embed.FS

// StarterFS returns the bundled starter manifest with its schemas and
// templates. Callers may pass it to LoadFS.
func StarterFS() fs.FS {
	sub, err := fs.Sub(embeddedStarter, "examples/starter")
	if err != nil {
		panic(err)
	}
	return sub
}
