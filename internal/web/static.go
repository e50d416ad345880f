package web

import (
	"embed"
)

// staticFiles is the status page served at / and under /static/.
//
//go:embed static/*
var staticFiles embed.FS
