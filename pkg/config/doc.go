// Package config provides configuration loading, validation, and hot
// reloading for Halcyon Switchboard.
//
// Configuration is loaded from a YAML file, with defaults applied for
// absent fields and environment variable overrides applied on top
// (SWITCHBOARD_SECTION_FIELD naming). Secret-bearing fields support
// ${VAR} expansion so credentials stay out of the file.
//
//	cfg, err := config.LoadConfigWithEnvOverrides("switchboard.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Validation collects every problem instead of stopping at the first:
//
//	var verr config.ValidationError
//	if errors.As(err, &verr) {
//	    for _, fe := range verr.Errors {
//	        fmt.Println(fe.Field, fe.Message)
//	    }
//	}
//
// A Watcher can reload the file on change; reloads that fail validation
// are discarded and the previous configuration stays in effect.
package config
