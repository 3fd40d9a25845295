// Package config provides configuration loading, merging, and path management for agentrt.
//
// # Configuration Loading
//
// Load merges configuration from these sources, later ones taking precedence:
//
//  1. Global config: agentrt.json, then agentrt.jsonc, in the XDG config
//     directory (~/.config/agentrt/)
//  2. Project config: .agentrt/agentrt.json, then .agentrt/agentrt.jsonc,
//     inside the given directory
//  3. Environment variables
//
// Only the given directory is searched for project config; parent
// directories are not. A file that is missing or fails to parse is skipped.
//
// # Supported Formats
//
//   - agentrt.json - Standard JSON configuration
//   - agentrt.jsonc - JSON with comments; "//" and "/* */" comments are removed
//     with regular expressions before parsing, so a "//" inside a string value
//     is removed as well
//
// Values are used as written: placeholders such as {env:VAR} or {file:path}
// are not expanded.
//
// # Configuration Merging
//
// Each loaded file is merged into the result:
//   - model and small_model overwrite the earlier value when set
//   - provider and agent entries are merged by key; a later entry replaces an
//     earlier entry with the same key as a whole
//   - lsp, watcher and experimental replace the earlier value when present
//
// All other keys (among them $schema, username, instructions, command,
// permission, mcp, formatter and tools) are not carried into the result.
//
// # Path Management
//
// The package provides XDG Base Directory Specification compliant path management
// through the Paths type:
//   - Data: ~/.local/share/agentrt (XDG_DATA_HOME)
//   - Config: ~/.config/agentrt (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/agentrt (XDG_CACHE_HOME)
//   - State: ~/.local/state/agentrt (XDG_STATE_HOME)
//
// On Windows, these paths are adapted to use APPDATA as appropriate.
//
// # Environment Variable Overrides
//
// These environment variables override loaded configuration:
//   - AGENTRT_MODEL - Override the default model
//   - AGENTRT_SMALL_MODEL - Override the small model
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY, AWS_ACCESS_KEY_ID -
//     set the apiKey of the anthropic, openai, google or bedrock provider when
//     no file has set it
//
// # TypeScript Compatibility
//
// types.ProviderConfig accepts both a top-level apiKey/baseURL and a
// TypeScript-style options object.
//
// # Usage Example
//
//	// Load configuration from the current directory
//	config, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Get standard paths
//	paths := config.GetPaths()
//	err = paths.EnsurePaths() // Create directories if they don't exist
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Save configuration
//	err = config.Save(config, config.GlobalConfigPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config