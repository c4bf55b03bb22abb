package main

// General API documentation for swaggo. Regenerate internal/apidocs with
// `swag init -g cmd/sidekickd/docs.go -o internal/apidocs`.
//
// @title           sidekick API
// @version         1.0
// @description     Local completion orchestration daemon for editors.
//
// @contact.name   sidekick maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
