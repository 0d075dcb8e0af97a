// Package docs registers the status API's swagger document with
// swaggo/http-swagger. Normally produced by `swag init`; hand-written
// here since the API surface has only two routes.
package docs

import "github.com/swaggo/swag"

const doc = `{
    "schemes": ["http", "https"],
    "swagger": "2.0",
    "info": {
        "title": "evmindexer status API",
        "description": "Liveness and indexing-progress endpoints for evmindexer.",
        "contact": {
            "name": "API Support",
            "url": "https://github.com/ledgerflow-xyz/evmindexer"
        },
        "license": {
            "name": "Apache 2.0",
            "url": "https://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "1.0"
    },
    "host": "localhost:8080",
    "basePath": "/",
    "paths": {
        "/healthz": {
            "get": {
                "summary": "Liveness probe",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/status": {
            "get": {
                "summary": "Indexing status",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}, "500": {"description": "Internal Server Error"}}
            }
        }
    }
}`

// SwaggerInfo holds exported swagger info for the status API, matching
// the shape swag-generated docs packages expose.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "evmindexer status API",
	Description:      "Liveness and indexing-progress endpoints for evmindexer.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  doc,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
