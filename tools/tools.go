//go:build tools

// Package tools lists the development tools the repo relies on. They run via
// `go run pkg@version` or a global `go install` and are not tracked in go.mod.
package tools

// mockgen - regenerates internal/mocks from the ports in internal/core
//   Run: go generate ./internal/mocks
//   Version: go.uber.org/mock/mockgen@v0.6.0 (matches go.uber.org/mock in go.mod)
//
// air - live reload for the API server while editing templates and handlers
//   Install: go install github.com/air-verse/air@v1.63.0
//   Run: air --build.cmd "go build -o ./tmp/notekeeper ./cmd/notekeeper" --build.bin ./tmp/notekeeper
