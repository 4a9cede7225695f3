package main

import "cpim-backend/lib/scrapers/gop"

type PortalConfig struct {
	BaseUrl        string `json:"base_url"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	DiagnosticsDir string `json:"diagnostics_dir"`
	// partial overrides merged over gop.DefaultSelectors, for when the
	// portal markup shifts under us
	Selectors gop.Selectors `json:"selectors"`
}

type DatabaseConfig struct {
	File string `json:"file"`
}

type Config struct {
	Port           int            `json:"port"`
	AllowedOrigins []string       `json:"allowed_origins"`
	Portal         PortalConfig   `json:"portal"`
	Database       DatabaseConfig `json:"database"`
}
