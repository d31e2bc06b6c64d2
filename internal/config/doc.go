// Package config loads service configuration with viper.
//
// Sources in increasing priority: built-in defaults, a config file
// (skillindex.yaml in the working directory or an explicit path), a .env
// file, and SKILLINDEX_* environment variables. Nested keys map to
// variables by replacing dots with underscores:
//
//	server.api_key              SKILLINDEX_SERVER_API_KEY
//	embedding.provider          SKILLINDEX_EMBEDDING_PROVIDER
//	search.field_weights.name   SKILLINDEX_SEARCH_FIELD_WEIGHTS_NAME
package config
