package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           llmd API
// @version         1.0
// @description     HTTP API for local model management and structured query orchestration.
//
// @contact.name   llmd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
