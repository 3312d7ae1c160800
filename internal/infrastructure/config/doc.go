// Package config loads the registry's YAML configuration.
//
// Settings are layered: built-in defaults, then the file, then REGISTRY_*
// environment variables read with envconfig. The JWT secret has no default
// and belongs in REGISTRY_JWT_SECRET rather than the file. Nothing mutates
// a Config after Load returns.
//
//	cfg, err := config.Load("/etc/student-registry/config.yaml")
//	if err != nil {
//	    return err
//	}
//	srv.Addr = cfg.API.Address()
package config
