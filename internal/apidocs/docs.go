// Package apidocs holds the OpenAPI document of the sidekick HTTP API and
// registers it with swag. Regenerate with
// `swag init -g cmd/sidekickd/docs.go -o internal/apidocs`.
package apidocs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "sidekick maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/complete": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Inline completion at a cursor position",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.CompleteRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.CompleteResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/explain": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Explain a code fragment",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.ExplainRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.TextResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Backend error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/refactor": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Rewrite a code fragment",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.RefactorRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.TextResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Backend error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/tests": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Generate unit tests for a code fragment",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.TestsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.TextResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "502": {"description": "Backend error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/status": {
            "get": {
                "produces": ["application/json"],
                "summary": "Backend and cache status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/v1/model": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Switch the active model",
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.SwitchModelRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.StatusResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Shutting down", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/retry": {
            "post": {
                "produces": ["application/json"],
                "summary": "Re-run backend discovery",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/v1/models": {
            "get": {
                "produces": ["application/json"],
                "summary": "List model files in the models directory",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}
                }
            }
        },
        "/v1/events": {
            "get": {
                "produces": ["application/x-ndjson"],
                "summary": "Stream backend lifecycle events",
                "responses": {
                    "200": {"description": "NDJSON stream", "schema": {"$ref": "#/definitions/types.EventMessage"}}
                }
            }
        },
        "/healthz": {
            "get": {"produces": ["text/plain"], "summary": "Liveness", "responses": {"200": {"description": "ok"}}}
        },
        "/readyz": {
            "get": {
                "produces": ["text/plain"],
                "summary": "Readiness",
                "responses": {"200": {"description": "ready"}, "503": {"description": "loading"}}
            }
        }
    },
    "definitions": {
        "types.CompleteRequest": {
            "type": "object",
            "properties": {
                "text": {"type": "string"},
                "line": {"type": "integer", "example": 12},
                "character": {"type": "integer", "example": 17},
                "trigger": {"type": "string", "example": "automatic"},
                "path": {"type": "string", "example": "src/math.js"}
            }
        },
        "types.CompleteResponse": {
            "type": "object",
            "properties": {
                "completion": {"type": "string", "example": "return n * factorial(n - 1);"},
                "source": {"type": "string", "example": "backend"},
                "latency_ms": {"type": "integer", "example": 142},
                "skipped": {"type": "boolean"}
            }
        },
        "types.ExplainRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "context": {"type": "string"}
            }
        },
        "types.RefactorRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "instruction": {"type": "string", "example": "extract the loop body into a helper"},
                "context": {"type": "string"}
            }
        },
        "types.TestsRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "context": {"type": "string"}
            }
        },
        "types.TextResponse": {
            "type": "object",
            "properties": {
                "text": {"type": "string"}
            }
        },
        "types.SwitchModelRequest": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "deepseek-coder-1.3b-base.Q4_K_M.gguf"}
            }
        },
        "types.Model": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "path": {"type": "string"},
                "size_bytes": {"type": "integer"},
                "family": {"type": "string", "example": "fim-deepseek"}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {
                "models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "ready": {"type": "boolean", "example": true},
                "active_model": {"type": "string"},
                "family": {"type": "string", "example": "fim-deepseek"},
                "state": {"type": "string", "example": "healthy"},
                "last_error": {"type": "string"},
                "backend_url": {"type": "string", "example": "http://127.0.0.1:8080"},
                "pid": {"type": "integer"},
                "gpu_offload": {"type": "boolean", "example": true},
                "cache_entries": {"type": "integer", "example": 17},
                "uptime_seconds": {"type": "integer", "example": 3600}
            }
        },
        "types.EventMessage": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "spawn_ready"},
                "state": {"type": "string", "example": "healthy"},
                "model": {"type": "string"},
                "time_unix_ms": {"type": "integer"},
                "fields": {"type": "object"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid JSON body"},
                "code": {"type": "integer", "example": 400}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "sidekick API",
	Description:      "Local completion orchestration daemon for editors.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
