package opshttp

import (
	"net/http"

	"github.com/keithlinneman/siteedge/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// Status is mounted under /-/status with the prefix stripped.
	Status http.Handler

	// AllowPublic disables the private-network guard. Tests and local runs only.
	AllowPublic bool
}
